package app

import (
	"os"
	"path/filepath"
)

// HomeEnv selects the gatechain home directory
const HomeEnv = "GATECHAIN_HOME"

// DefaultHome is used when HomeEnv is unset
const DefaultHome = ".gatechain"

// Paths holds all resolved paths under the gatechain home
type Paths struct {
	Home         string // .gatechain
	Var          string // .gatechain/var
	RuntimeState string // .gatechain/runtime-state

	// Key files
	Settings    string // .gatechain/settings.yaml
	Catalog     string // .gatechain/prompts.yaml
	RunRegistry string // .gatechain/var/runs.json
	Results     string // .gatechain/var/results
	ResultsDB   string // .gatechain/var/results.db
	History     string // .gatechain/var/history.ndjson
	WaitState   string // .gatechain/runtime-state/verify-active.json
	Health      string // .gatechain/runtime-state/health.json
}

// ResolvePaths returns all paths based on the GATECHAIN_HOME environment variable
func ResolvePaths() Paths {
	home := os.Getenv(HomeEnv)
	if home == "" {
		home = DefaultHome
	}
	return PathsFor(home)
}

// PathsFor lays the standard structure out under home
func PathsFor(home string) Paths {
	p := Paths{
		Home:         home,
		Var:          filepath.Join(home, "var"),
		RuntimeState: filepath.Join(home, "runtime-state"),
	}

	p.Settings = filepath.Join(home, "settings.yaml")
	p.Catalog = filepath.Join(home, "prompts.yaml")
	p.RunRegistry = filepath.Join(p.Var, "runs.json")
	p.Results = filepath.Join(p.Var, "results")
	p.ResultsDB = filepath.Join(p.Var, "results.db")
	p.History = filepath.Join(p.Var, "history.ndjson")
	p.WaitState = filepath.Join(p.RuntimeState, "verify-active.json")
	p.Health = filepath.Join(p.RuntimeState, "health.json")

	return p
}
