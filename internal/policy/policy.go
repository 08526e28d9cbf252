// Package policy loads a JSON thermal policy and runs it against the
// cooling entities. A policy file declares the info types to collect and
// a list of policies, each a set of conditions and the actions to execute
// when all of them match.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

type document struct {
	InfoTypes []map[string]any `json:"info_types"`
	Policies  []struct {
		Name       string           `json:"name"`
		Conditions []map[string]any `json:"conditions"`
		Actions    []map[string]any `json:"actions"`
	} `json:"policies"`
}

type Policy struct {
	Name       string
	conditions []Condition
	actions    []Action
}

func (p *Policy) Match(infos *Infos) bool {
	for _, c := range p.conditions {
		if !c.Match(infos) {
			return false
		}
	}
	return true
}

// Engine holds a validated policy file. Run must not be called
// concurrently.
type Engine struct {
	infos    *Infos
	policies []*Policy
	log      logger.Logger
}

// Load reads and validates a policy file.
func Load(path string, env Env) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err)
	}
	return Parse(data, env)
}

// Parse builds an engine from a policy document. Unknown types, missing
// arguments and conditions or actions whose info type is not declared are
// rejected.
func Parse(data []byte, env Env) (*Engine, error) {
	errFactory := errors.New()

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errFactory.Wrap(ErrParseFailed, err)
	}

	e := &Engine{
		infos: newInfos(),
		log:   logger.With("policy"),
	}

	for _, obj := range doc.InfoTypes {
		typ := typeOf(obj)
		factory, ok := infoTypes[typ]
		if !ok {
			return nil, errFactory.WithMessage(ErrUnknownType, "info type "+typ)
		}
		if !e.infos.add(factory(env)) {
			return nil, errFactory.WithMessage(ErrDuplicate, "info type "+typ)
		}
	}

	seen := make(map[string]bool)
	for i, raw := range doc.Policies {
		name := raw.Name
		if name == "" {
			name = fmt.Sprintf("policy%d", i)
		}
		if seen[name] {
			return nil, errFactory.WithMessage(ErrDuplicate, "policy "+name)
		}
		seen[name] = true

		p := &Policy{Name: name}
		for _, obj := range raw.Conditions {
			typ := typeOf(obj)
			c, ok := conditionTypes[typ]
			if !ok {
				return nil, errFactory.WithMessage(ErrUnknownType, name+": condition "+typ)
			}
			if err := e.checkRequires(name, typ, c.Requires()); err != nil {
				return nil, err
			}
			p.conditions = append(p.conditions, c)
		}
		for _, obj := range raw.Actions {
			typ := typeOf(obj)
			factory, ok := actionTypes[typ]
			if !ok {
				return nil, errFactory.WithMessage(ErrUnknownType, name+": action "+typ)
			}
			a, err := factory(obj)
			if err != nil {
				return nil, err
			}
			if err := e.checkRequires(name, typ, a.Requires()); err != nil {
				return nil, err
			}
			p.actions = append(p.actions, a)
		}
		e.policies = append(e.policies, p)
	}

	if e.infos.Has(KindControl) && env.Algorithm == nil {
		return nil, errFactory.New(ErrNoAlgorithm)
	}

	return e, nil
}

func typeOf(obj map[string]any) string {
	typ, _ := obj["type"].(string)
	return typ
}

func (e *Engine) checkRequires(policy, typ string, kinds []Kind) error {
	for _, k := range kinds {
		if !e.infos.Has(k) {
			return errors.New().WithMessage(ErrInfoMissing,
				fmt.Sprintf("%s: %s needs %s", policy, typ, k))
		}
	}
	return nil
}

func (e *Engine) Policies() []*Policy {
	return e.policies
}

func (e *Engine) Infos() *Infos {
	return e.infos
}

// Run collects every info and executes the actions of each matching policy
// in file order. It returns the names of the policies that matched.
func (e *Engine) Run(ctx context.Context) []string {
	e.infos.Collect(ctx)

	var matched []string
	for _, p := range e.policies {
		if !p.Match(e.infos) {
			continue
		}
		matched = append(matched, p.Name)
		for _, a := range p.actions {
			if err := a.Execute(ctx, e.infos); err != nil {
				e.log.Warn().
					Str("policy", p.Name).
					Err(err).
					Msg("Policy action failed")
			}
		}
	}

	e.log.Debug().Strs("matched", matched).Msg("Ran thermal policies")
	return matched
}
