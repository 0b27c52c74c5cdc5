package queueing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidQueue is returned for a multi-server model with c < 1 or μ ≤ 0.
var ErrInvalidQueue = errors.New("invalid multi-server queue")

// MultiServer models an M/M/c queue with c identical servers of rate μ.
type MultiServer struct {
	servers     int
	serviceRate float64
}

// NewMultiServer creates an M/M/c model.
func NewMultiServer(servers int, serviceRate float64) (MultiServer, error) {
	if servers < 1 {
		return MultiServer{}, fmt.Errorf("%w: servers must be >= 1, got %d", ErrInvalidQueue, servers)
	}
	if !(serviceRate > 0) || math.IsInf(serviceRate, 0) {
		return MultiServer{}, fmt.Errorf("%w: service rate must be > 0, got %g", ErrInvalidQueue, serviceRate)
	}
	return MultiServer{servers: servers, serviceRate: serviceRate}, nil
}

// Servers returns c.
func (q MultiServer) Servers() int {
	return q.servers
}

// ServiceRate returns μ.
func (q MultiServer) ServiceRate() float64 {
	return q.serviceRate
}

// ErlangCMetrics holds the steady-state M/M/c metrics for one arrival rate.
// When Stable is false only Rho, Servers and rates are populated.
type ErlangCMetrics struct {
	Stable      bool    `json:"stable"`
	Servers     int     `json:"servers"`
	ArrivalRate float64 `json:"arrival_rate"`
	ServiceRate float64 `json:"service_rate"`
	Rho         float64 `json:"rho"`
	P0          float64 `json:"p0"`
	ErlangC     float64 `json:"p_wait"`
	Lq          float64 `json:"lq"`
	Wq          float64 `json:"wq"`
	W           float64 `json:"w"`
	L           float64 `json:"l"`
}

// Metrics computes Erlang C metrics for arrival rate λ.
//
// a = λ/μ, ρ = a/c, P0 = 1/(Σ_{n<c} aⁿ/n! + (a^c/c!)/(1−ρ)),
// C = (a^c/c!)/(1−ρ)·P0, Lq = C·ρ/(1−ρ), Wq = Lq/λ, W = Wq + 1/μ, L = λW.
func (q MultiServer) Metrics(lambda float64) ErlangCMetrics {
	c := q.servers
	mu := q.serviceRate
	a := lambda / mu
	rho := a / float64(c)

	m := ErlangCMetrics{
		Servers:     c,
		ArrivalRate: lambda,
		ServiceRate: mu,
		Rho:         rho,
	}
	if rho >= 1 {
		return m
	}

	// term = aⁿ/n!, built iteratively so factorials never overflow.
	sum := 0.0
	term := 1.0
	for n := 0; n < c; n++ {
		sum += term
		term *= a / float64(n+1)
	}
	// term now holds a^c/c!
	last := term / (1 - rho)

	p0 := 1 / (sum + last)
	erlangC := last * p0
	lq := erlangC * rho / (1 - rho)
	wq := 0.0
	if lambda > 0 {
		wq = lq / lambda
	}
	w := wq + 1/mu

	m.Stable = true
	m.P0 = p0
	m.ErlangC = erlangC
	m.Lq = lq
	m.Wq = wq
	m.W = w
	m.L = lambda * w
	return m
}

// ServerSizing is the result of FindOptimalServers.
type ServerSizing struct {
	Feasible    bool            `json:"feasible"`
	Servers     int             `json:"servers,omitempty"`
	TargetWq    float64         `json:"target_wq"`
	AchievedWq  float64         `json:"achieved_wq,omitempty"`
	Utilization float64         `json:"utilization,omitempty"`
	Metrics     *ErlangCMetrics `json:"metrics,omitempty"`
	MaxSearched int             `json:"max_searched"`
	Message     string          `json:"message,omitempty"`
}

// FindOptimalServers returns the smallest c in [1, maxServers] that is stable
// and keeps Wq at or below targetWq, using this model's μ.
func (q MultiServer) FindOptimalServers(lambda, targetWq float64, maxServers int) ServerSizing {
	for c := 1; c <= maxServers; c++ {
		m := MultiServer{servers: c, serviceRate: q.serviceRate}.Metrics(lambda)
		if m.Stable && m.Wq <= targetWq {
			return ServerSizing{
				Feasible:    true,
				Servers:     c,
				TargetWq:    targetWq,
				AchievedWq:  m.Wq,
				Utilization: m.Rho,
				Metrics:     &m,
				MaxSearched: maxServers,
			}
		}
	}
	return ServerSizing{
		TargetWq:    targetWq,
		MaxSearched: maxServers,
		Message:     fmt.Sprintf("cannot achieve target with <= %d servers", maxServers),
	}
}

// WqCurve returns Wq for c = 1..maxServers (+Inf where unstable).
func (q MultiServer) WqCurve(lambda float64, maxServers int) []float64 {
	out := make([]float64, 0, maxServers)
	for c := 1; c <= maxServers; c++ {
		m := MultiServer{servers: c, serviceRate: q.serviceRate}.Metrics(lambda)
		if !m.Stable {
			out = append(out, math.Inf(1))
			continue
		}
		out = append(out, m.Wq)
	}
	return out
}
