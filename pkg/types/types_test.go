package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "simple lowercase", input: "key", want: true},
		{name: "with underscore", input: "v_1", want: true},
		{name: "leading digit", input: "1key", want: false},
		{name: "reserved double underscore", input: "__hidden", want: false},
		{name: "empty", input: "", want: false},
		{name: "contains dot", input: "a.b", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.input))
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	hashable := map[string]bool{"string": true, "int64": true, "document": false}

	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{
			name: "valid schema",
			schema: Schema{Attributes: []Attribute{
				{Name: "k", Type: "string"},
				{Name: "v", Type: "string"},
			}},
			wantErr: false,
		},
		{
			name: "duplicate attribute",
			schema: Schema{Attributes: []Attribute{
				{Name: "k", Type: "string"},
				{Name: "k", Type: "string"},
			}},
			wantErr: true,
		},
		{
			name: "non-hashable key",
			schema: Schema{Attributes: []Attribute{
				{Name: "k", Type: "document"},
			}},
			wantErr: true,
		},
		{
			name:    "no attributes",
			schema:  Schema{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(hashable)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegionPointLeaderAndTail(t *testing.T) {
	tests := []struct {
		name     string
		replicas []Replica
		wantLead ServerID
		wantTail ServerID
		wantOK   bool
	}{
		{
			name:     "empty chain is offline",
			replicas: nil,
			wantOK:   false,
		},
		{
			name:     "single replica is both leader and tail",
			replicas: []Replica{{Server: 1, Virtual: 10}},
			wantLead: 1, wantTail: 1, wantOK: true,
		},
		{
			name:     "chain of three",
			replicas: []Replica{{Server: 1}, {Server: 2}, {Server: 3}},
			wantLead: 1, wantTail: 3, wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Region{Replicas: tt.replicas}
			lead, ok := r.PointLeader()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantLead, lead.Server)
			}
			tail, ok := r.Tail()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantTail, tail.Server)
			}
		})
	}
}

func TestSpaceValidate(t *testing.T) {
	base := Space{
		Name:           "kv",
		FaultTolerance: 1,
		Schema: Schema{Attributes: []Attribute{
			{Name: "k", Type: "string"},
			{Name: "a", Type: "int64"},
			{Name: "b", Type: "int64"},
		}},
	}

	tests := []struct {
		name    string
		mutate  func(s *Space)
		wantErr bool
	}{
		{name: "valid space", mutate: func(s *Space) {}, wantErr: false},
		{name: "bad name", mutate: func(s *Space) { s.Name = "1bad" }, wantErr: true},
		{name: "zero fault tolerance", mutate: func(s *Space) { s.FaultTolerance = 0 }, wantErr: true},
		{
			name: "subspace attr out of range",
			mutate: func(s *Space) {
				s.Subspaces = []*Subspace{{Attrs: []int{5}}}
			},
			wantErr: true,
		},
		{
			name: "subspace duplicate attr",
			mutate: func(s *Space) {
				s.Subspaces = []*Subspace{{Attrs: []int{1, 1}}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := base
			tt.mutate(&sp)
			err := sp.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigurationLookups(t *testing.T) {
	cfg := &Configuration{
		Servers: []Server{{ID: 1, BindTo: "a:1"}, {ID: 2, BindTo: "b:1"}},
		Spaces:  []*Space{{ID: 1, Name: "kv"}},
	}

	s, ok := cfg.ServerByID(2)
	assert.True(t, ok)
	assert.Equal(t, "b:1", s.BindTo)

	_, ok = cfg.ServerByID(99)
	assert.False(t, ok)

	sp := cfg.SpaceByName("kv")
	assert.NotNil(t, sp)
	assert.Nil(t, cfg.SpaceByName("missing"))
}
