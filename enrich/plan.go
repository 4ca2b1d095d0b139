package enrich

import (
	"fmt"
	"time"

	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/metrics"
)

// Step enriches one anchor field. Capabilities are tried in order until one
// of them engages; Needs is passed unchanged to every enricher tried.
type Step struct {
	Target       string   `json:"target" yaml:"target"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Needs        []string `json:"needs" yaml:"needs"`
}

// Validate checks the step for errors.
func (s Step) Validate() error {
	if s.Target == "" {
		return fmt.Errorf("step target is required")
	}
	if len(s.Capabilities) == 0 {
		return fmt.Errorf("step %s: at least one capability is required", s.Target)
	}
	return nil
}

// Plan is the ordered list of steps applied to every record.
type Plan []Step

// Validate checks every step.
func (p Plan) Validate() error {
	for i, s := range p {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// StepResult records what happened for one step.
type StepResult struct {
	Target    string   `json:"target"`
	Anchored  bool     `json:"anchored"`
	AppliedBy string   `json:"applied_by,omitempty"`
	Declined  []string `json:"declined,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}

// Report summarizes one Apply call.
type Report struct {
	Steps []StepResult `json:"steps"`
}

// Applied returns how many steps were engaged by some enricher.
func (r Report) Applied() int {
	n := 0
	for _, s := range r.Steps {
		if s.AppliedBy != "" {
			n++
		}
	}
	return n
}

// Apply runs plan against fields using reg.
//
// A step whose anchor is absent is skipped. Unregistered capability keys are
// skipped and recorded as missing. A FatalError raised by an enricher, or any
// other panic, stops the plan and is returned; fields may then be partially
// enriched and the record should be dropped by the caller.
func Apply(reg Registry, fields *field.List, plan Plan) (Report, error) {
	report := Report{Steps: make([]StepResult, 0, len(plan))}

	for _, step := range plan {
		result := StepResult{Target: step.Target}

		target, ok := fields.Get(step.Target)
		if !ok {
			report.Steps = append(report.Steps, result)
			continue
		}
		result.Anchored = true

		for _, key := range step.Capabilities {
			e, ok := reg.Get(key)
			if !ok {
				result.Missing = append(result.Missing, key)
				metrics.EnrichCalls.WithLabelValues(key, metrics.ResultMissing).Inc()
				continue
			}

			applied, err := invoke(key, e, fields, target, step.Needs)
			if err != nil {
				report.Steps = append(report.Steps, result)
				return report, err
			}
			if applied {
				result.AppliedBy = key
				break
			}
			result.Declined = append(result.Declined, key)
		}

		report.Steps = append(report.Steps, result)
	}

	return report, nil
}

func invoke(key string, e Enricher, fields *field.List, target field.DataField, needs []string) (applied bool, err error) {
	start := time.Now()
	defer func() {
		metrics.EnrichDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())

		if r := recover(); r != nil {
			fatal, ok := r.(*FatalError)
			if !ok {
				fatal = &FatalError{err: fmt.Errorf("panic: %v", r)}
			}
			if fatal.Capability == "" {
				fatal.Capability = key
			}
			metrics.EnrichCalls.WithLabelValues(key, metrics.ResultFatal).Inc()
			applied, err = false, fatal
		}
	}()

	applied = e.Enrich(fields, target, needs)
	if applied {
		metrics.EnrichCalls.WithLabelValues(key, metrics.ResultApplied).Inc()
	} else {
		metrics.EnrichCalls.WithLabelValues(key, metrics.ResultNotApplicable).Inc()
	}
	return applied, nil
}
