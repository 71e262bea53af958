// Package process runs allow-listed local commands as registry tools.
//
// Tools are declared in a YAML or JSON file:
//
//	tools:
//	  - name: score_vendor
//	    command: ./scripts/score.sh
//	    env: { SCORING_MODE: strict }
//
// Runner.Install registers them on a registry.Registry, after which a
// declared action of kind `call` can name them in its `tool` param.
package process
