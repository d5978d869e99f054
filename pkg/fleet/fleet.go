// Package fleet loads the declarative fleet file and expands it into the
// desired host set consumed by rebuild. The fleet file is CUE: typed pools
// of {account, cloud, type, count} unified against a built-in schema, so a
// malformed pool fails at load time with a real error instead of producing
// a mis-parsed host name later.
package fleet

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/rs/zerolog"

	"github.com/stratushpc/stratus/pkg/nodemap"
)

// poolSchema constrains each pool entry. Account and cloud must be
// hyphen-free lowercase tags per the host naming grammar; the type tag may
// contain hyphens but never starts or ends with one.
const poolSchema = `
#Pool: {
	account: string & =~"^[a-z0-9]+$"
	cloud:   string & =~"^[a-z0-9]+$"
	type:    string & =~"^[a-z0-9]+(-[a-z0-9]+)*$"
	count:   int & >=0
}

pools: [...#Pool]
`

// Pool is one fleet entry: count host slots of one type for one account.
type Pool struct {
	Account string `json:"account"`
	Cloud   string `json:"cloud"`
	Type    string `json:"type"`
	Count   int    `json:"count"`
}

// File is a parsed fleet file.
type File struct {
	Pools []Pool `json:"pools"`
}

// Loader parses fleet files.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
	logger zerolog.Logger
}

// NewLoader creates a fleet loader with the built-in pool schema.
func NewLoader(logger zerolog.Logger) *Loader {
	ctx := cuecontext.New()
	return &Loader{
		ctx:    ctx,
		schema: ctx.CompileString(poolSchema),
		logger: logger.With().Str("component", "fleet").Logger(),
	}
}

// Load parses and validates the fleet file at path.
func (l *Loader) Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file %s: %w", path, err)
	}

	val := l.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile fleet file: %s", cueerrors.Details(err, nil))
	}

	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("fleet file violates schema: %s", cueerrors.Details(err, nil))
	}

	file := &File{}
	poolsVal := unified.LookupPath(cue.ParsePath("pools"))
	if !poolsVal.Exists() {
		return nil, fmt.Errorf("fleet file has no pools list")
	}
	if err := poolsVal.Decode(&file.Pools); err != nil {
		return nil, fmt.Errorf("failed to decode pools: %w", err)
	}

	l.logger.Debug().
		Str("path", path).
		Int("pools", len(file.Pools)).
		Msg("Fleet file loaded")

	return file, nil
}

// Hosts expands the pools into the sorted desired host set. A pool of
// count one yields its bare <account>-<cloud>-<type> name; larger pools
// number the hosts from 1 by suffixing the type tag. Duplicate hosts
// across pools are an error.
func (f *File) Hosts() ([]string, error) {
	seen := make(map[string]bool)
	hosts := []string{}

	for _, pool := range f.Pools {
		for i := 1; i <= pool.Count; i++ {
			nodeType := pool.Type
			if pool.Count > 1 {
				nodeType = fmt.Sprintf("%s%d", pool.Type, i)
			}
			host, err := nodemap.ComposeHost(pool.Account, pool.Cloud, nodeType)
			if err != nil {
				return nil, fmt.Errorf("pool %s/%s/%s: %w", pool.Account, pool.Cloud, pool.Type, err)
			}
			if seen[host] {
				return nil, fmt.Errorf("duplicate host %s expanded from pools", host)
			}
			seen[host] = true
			hosts = append(hosts, host)
		}
	}

	sort.Strings(hosts)
	return hosts, nil
}

// LoadHosts is the common path: parse the fleet file and expand it.
func (l *Loader) LoadHosts(path string) ([]string, error) {
	file, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return file.Hosts()
}
