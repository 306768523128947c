// Package gateway wires the request pipeline: CORS, rate-limit admission,
// route classification, authentication, and dispatch to the collaborators
// (CRUD store, upload engine, key issuer).
package gateway

import "net/http"

// Stage is one named gatekeeping step. Run either lets the request continue
// (true) or writes a terminal response and returns false. Stages are
// evaluated in order and the pipeline stops at the first terminal one, so
// each stage can be tested in isolation.
type Stage struct {
	Name string
	Run  func(w http.ResponseWriter, r *http.Request) bool
}

// Pipeline is an ordered list of stages applied ahead of routing.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a pipeline from stages, applied in the given order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Middleware runs every stage before handing the request to next.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, stage := range p.stages {
			if !stage.Run(w, r) {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
