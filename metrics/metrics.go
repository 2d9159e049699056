/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the daemon's Prometheus surface: gauges for
// active_workers and live_connections, and a counter for ACL refusals,
// mirroring the teacher's own use of github.com/prometheus/client_golang
// for its nabbar/golib/prometheus subpackage (SPEC_FULL.md §11).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric this daemon reports. A nil *Collector is
// not valid; use NewCollector.
type Collector struct {
	ActiveWorkers   prometheus.Gauge
	LiveConnections prometheus.Gauge
	ACLRefusals     *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its metrics against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cfserverd",
			Name:      "active_workers",
			Help:      "Number of connection workers currently running.",
		}),
		LiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cfserverd",
			Name:      "live_connections",
			Help:      "Number of peer addresses currently registered as connected.",
		}),
		ACLRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cfserverd",
			Name:      "acl_refusals_total",
			Help:      "Count of requests refused by ACL or role authorization, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.ActiveWorkers, c.LiveConnections, c.ACLRefusals)
	return c
}

// ObserveWorkers sets the active_workers gauge to n.
func (c *Collector) ObserveWorkers(n int64) {
	c.ActiveWorkers.Set(float64(n))
}

// ObserveConnections sets the live_connections gauge to n.
func (c *Collector) ObserveConnections(n int) {
	c.LiveConnections.Set(float64(n))
}

// RefuseReason increments the ACL-refusal counter for reason (e.g.
// "no_admit_rule", "role_not_permitted").
func (c *Collector) RefuseReason(reason string) {
	c.ACLRefusals.WithLabelValues(reason).Inc()
}
