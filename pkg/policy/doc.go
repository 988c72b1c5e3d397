// Package policy provides Open Policy Agent (OPA) integration for mpvbridge.
//
// Every command sent to a player session is evaluated against a set of Rego
// policies before it reaches libmpv. The Engine satisfies player.CommandGate,
// so a denied command fails with a libmpv error of kind "denied".
//
// # Architecture
//
// The policy system consists of three main components:
//
//  1. Engine - Compiles and evaluates Rego policies against commands
//  2. Loader - Loads policies from files and directories and watches them
//  3. Built-in Policies - Pre-defined rules for dangerous commands
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p := player.New(backend, player.PlayerOptions{Gate: engine})
//
// Evaluating a command directly:
//
//	decision, err := engine.EvaluateCommand(ctx, policy.CommandInput{
//	    Session: "main",
//	    Command: "loadfile",
//	    Args:    []interface{}{"fd://3"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !decision.Allowed {
//	    fmt.Println(decision.Reason())
//	}
//
// # Built-in Policies
//
//  1. subprocess - Rejects run and subprocess
//  2. script-loading - Rejects load-script and runtime changes to script properties
//  3. protocols - Rejects loadfile targets on data.settings.denied_protocols
//  4. file-writes - Warns about screenshot-to-file and cache dumps
//
// # Custom Policies
//
// A policy package defines a deny set. Entries are strings or objects with
// a message and an optional severity:
//
//	# Keep sessions from quitting the player.
//	# severity: error
//	package custom.quit
//
//	import rego.v1
//
//	deny contains "quit is reserved for the host" if {
//	    input.command in {"quit", "quit-watch-later"}
//	}
//
// The input document carries session, command, args and timestamp. Data
// written with Engine.SetData is visible under data.
//
// # Severity Levels
//
//   - info, warning: reported as warnings, the command still runs
//   - error, critical: the command is denied
//
// # Hot Reload
//
// Engine.Watch reloads every path given to LoadPolicies when a .rego or
// .json file changes. A reload that fails to compile keeps the previous set.
package policy
