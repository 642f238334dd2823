package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kouak/tracecli/internal/model"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"validation", &model.ValidationError{Msg: "bad"}, 1},
		{"context", &model.ContextError{Msg: "none"}, 1},
		{"resolution", &model.ResolutionError{Kind: "org", Name: "acme"}, 1},
		{"auth", &model.AuthError{Reason: "expired"}, 2},
		{"api", &model.ApiError{Status: 500, Endpoint: "/x"}, 3},
		{"composite with status", model.NewCompositeFetchError([]error{&model.ApiError{Status: 503}}), 3},
		{"composite without status", model.NewCompositeFetchError([]error{assert.AnError}), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port := splitHostPort("db.internal:4000")
	assert.Equal(t, "db.internal", host)
	assert.Equal(t, 4000, port)

	host, port = splitHostPort("no-port-here")
	assert.Equal(t, "no-port-here", host)
	assert.NotZero(t, port)
}
