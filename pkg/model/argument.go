package model

// ArgumentType identifies the value type of an Argument.
type ArgumentType string

const (
	ArgumentTypeString ArgumentType = "string"
	ArgumentTypeInt    ArgumentType = "int"
	ArgumentTypeFloat  ArgumentType = "float"
	ArgumentTypeBool   ArgumentType = "bool"
	ArgumentTypePath   ArgumentType = "path"
)

// Argument is a single named, typed, optionally-constrained parameter that
// parametrizes a step's execution. Values are carried as strings; the
// backend interprets them according to Type.
type Argument struct {
	Name     string       `json:"name" yaml:"name"`
	Value    string       `json:"value" yaml:"value"`
	Default  string       `json:"default,omitempty" yaml:"default,omitempty"`
	Choices  []string     `json:"choices,omitempty" yaml:"choices,omitempty"`
	Type     ArgumentType `json:"type" yaml:"type"`
	Required bool         `json:"required" yaml:"required"`
	Disabled bool         `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Satisfied reports whether the argument blocks submission.
// A required argument must carry a non-empty value.
func (a Argument) Satisfied() bool {
	return !a.Required || a.Value != ""
}

// ApplyDefault fills Value from Default if no value has been set yet.
func (a *Argument) ApplyDefault() {
	if a.Value == "" {
		a.Value = a.Default
	}
}

// Argument set names used in validation reports.
const (
	ArgSetBatch      = "batch"
	ArgSetSubmission = "submission"
	ArgSetExtra      = "extra"
)

// ArgumentRef locates an argument within the workflow tree. Validation
// failures are reported as a list of refs so a caller can enumerate every
// unsatisfied argument instead of discovering them one at a time.
type ArgumentRef struct {
	Stage string `json:"stage"`
	Step  string `json:"step"`
	Set   string `json:"set"`
	Name  string `json:"name"`
}

func (r ArgumentRef) String() string {
	return r.Stage + "/" + r.Step + "/" + r.Set + "/" + r.Name
}
