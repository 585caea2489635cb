// Package config loads capplan configuration from YAML or CUE.
//
// A document is first unified with the embedded CUE schema (schema.cue),
// which rejects unknown keys, bad enums and malformed durations with file
// positions. The checked document is then laid over DefaultConfig, so any
// field it omits keeps its default, and finally validated with
// go-playground/validator struct tags.
//
//	cfg, err := config.Load("capplan.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        for _, v := range verrs {
//	            fmt.Println(v)
//	        }
//	    }
//	    return err
//	}
//
// The same settings written in CUE:
//
//	planner: {
//	    max_happenings: 10
//	    solver:         "gini"
//	}
//	facts: models: ["models/**/*.mg"]
package config
