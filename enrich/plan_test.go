package enrich

import (
	"errors"
	"testing"

	"github.com/c360studio/semenrich/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decline() Enricher {
	return Func(func(*field.List, field.DataField, []string) bool { return false })
}

func appendNeeds(prefix string) Enricher {
	return Func(func(fields *field.List, target field.DataField, needs []string) bool {
		for _, n := range needs {
			fields.Append(field.NewChars(target.Name+"_"+n, prefix))
		}
		return true
	})
}

func TestApply_TriesCapabilitiesInOrder(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Register("first", decline()))
	require.NoError(t, lib.Register("second", appendNeeds("second")))
	require.NoError(t, lib.Register("third", appendNeeds("third")))

	fields := field.List{field.NewChars("src_ip", "10.0.0.1")}
	plan := Plan{{Target: "src_ip", Capabilities: []string{"absent", "first", "second", "third"}, Needs: []string{"country"}}}

	report, err := Apply(lib, &fields, plan)
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	step := report.Steps[0]
	assert.True(t, step.Anchored)
	assert.Equal(t, "second", step.AppliedBy)
	assert.Equal(t, []string{"first"}, step.Declined)
	assert.Equal(t, []string{"absent"}, step.Missing)
	assert.Equal(t, 1, report.Applied())

	assert.Equal(t, []string{"src_ip", "src_ip_country"}, fields.Names())
	got, _ := fields.Get("src_ip_country")
	assert.Equal(t, "second", got.Value)
}

func TestApply_MissingAnchorSkipsStep(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Register("geo", appendNeeds("geo")))

	fields := field.List{field.NewChars("host", "edge")}
	plan := Plan{
		{Target: "src_ip", Capabilities: []string{"geo"}, Needs: []string{"country"}},
		{Target: "host", Capabilities: []string{"geo"}, Needs: []string{"site"}},
	}

	report, err := Apply(lib, &fields, plan)
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.False(t, report.Steps[0].Anchored)
	assert.Equal(t, "geo", report.Steps[1].AppliedBy)
	assert.Equal(t, []string{"host", "host_site"}, fields.Names())
}

func TestApply_AllUnregisteredIsNotAnError(t *testing.T) {
	fields := field.List{field.NewChars("src_ip", "10.0.0.1")}
	before := fields.Clone()

	report, err := Apply(NewLibrary(), &fields, Plan{{Target: "src_ip", Capabilities: []string{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Steps[0].Missing)
	assert.Zero(t, report.Applied())
	assert.Equal(t, before, fields)
}

func TestApply_FatalIsReturned(t *testing.T) {
	boom := errors.New("model handle is nil")
	lib := NewLibrary()
	require.NoError(t, lib.Register("broken", Func(func(*field.List, field.DataField, []string) bool {
		Fatal(boom)
		return false
	})))
	require.NoError(t, lib.Register("never", appendNeeds("never")))

	fields := field.List{field.NewChars("src_ip", "10.0.0.1")}
	_, err := Apply(lib, &fields, Plan{{Target: "src_ip", Capabilities: []string{"broken", "never"}, Needs: []string{"x"}}})

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, boom)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "broken", fatal.Capability)
	assert.Equal(t, []string{"src_ip"}, fields.Names(), "later capabilities must not run after a fatal error")
}

func TestApply_PanicIsContained(t *testing.T) {
	lib := NewLibrary()
	require.NoError(t, lib.Register("panicky", Func(func(*field.List, field.DataField, []string) bool {
		var m map[string]int
		m["x"]++
		return true
	})))

	fields := field.List{field.NewChars("k", "v")}
	_, err := Apply(lib, &fields, Plan{{Target: "k", Capabilities: []string{"panicky"}}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "panicky")
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{"empty plan", Plan{}, false},
		{"valid", Plan{{Target: "a", Capabilities: []string{"x"}}}, false},
		{"missing target", Plan{{Capabilities: []string{"x"}}}, true},
		{"no capabilities", Plan{{Target: "a"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
