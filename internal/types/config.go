package types

import "time"

// TaskConfig is the immutable execution descriptor for a single task. It is
// built once (by ingress parsing, template rendering, or a DAG spec) and
// never mutated afterward; concurrent readers across the pool and the
// executor are therefore always safe.
type TaskConfig struct {
	ID      string
	Name    string
	ExecType TaskExecType

	ExecCommand string
	// ExecParams carries strategy-specific inputs. Values are strings so the
	// descriptor survives JSON round-trips without loss; non-string JSON
	// values are serialized with encoding/json before being stored here.
	ExecParams map[string]string

	Timeout                    time.Duration
	RetryCount                 int
	RetryDelay                 time.Duration
	RetryUseExponentialBackoff bool

	Cancelable bool
	Priority   TaskPriority
	Queue      string
	Metadata   map[string]string

	CaptureOutput bool

	// Deps lists the logical ids of upstream nodes; only meaningful inside a
	// DAG spec, ignored for a standalone task submission.
	Deps []string
}

// Get returns cfg.ExecParams[key], or def if the key is absent.
func (cfg TaskConfig) Get(key, def string) string {
	if v, ok := cfg.ExecParams[key]; ok {
		return v
	}
	return def
}

// NestingDepth returns the "_nesting_depth" exec param as an int, defaulting
// to 0 when absent or unparsable.
func (cfg TaskConfig) NestingDepth() int {
	v, ok := cfg.ExecParams["_nesting_depth"]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// WithNestingDepth returns a shallow copy of cfg with "_nesting_depth" set.
// ExecParams is copied so the original TaskConfig stays immutable.
func (cfg TaskConfig) WithNestingDepth(depth int) TaskConfig {
	next := cfg
	next.ExecParams = make(map[string]string, len(cfg.ExecParams)+1)
	for k, v := range cfg.ExecParams {
		next.ExecParams[k] = v
	}
	next.ExecParams["_nesting_depth"] = itoa(depth)
	return next
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// MaxNestingDepth is the hard cap on Dag/Template strategy recursion.
const MaxNestingDepth = 10

// FailPolicy selects how a DAG reacts to a node's terminal failure.
type FailPolicy int

const (
	FailFast FailPolicy = iota
	SkipDownstream
)

func (p FailPolicy) String() string {
	if p == SkipDownstream {
		return "skip_downstream"
	}
	return "fail_fast"
}

// DagConfig configures one DAG execution.
type DagConfig struct {
	FailPolicy  FailPolicy
	MaxParallel int
	DagID       string
}

// Normalize coerces MaxParallel <= 0 to 1, per spec.
func (c DagConfig) Normalize() DagConfig {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	return c
}
