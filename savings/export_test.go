package savings

import "github.com/prometheus/client_golang/prometheus"

func (m *Metrics) RepairsCounter() prometheus.Counter     { return m.repairs }
func (m *Metrics) ConsistencyCounter() prometheus.Counter { return m.consistency }

func (l *KeyedLocker) Held() int { return l.held() }
