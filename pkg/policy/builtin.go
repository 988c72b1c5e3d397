package policy

import (
	"time"
)

// DefaultDeniedProtocols are the loadfile protocols the protocols policy
// rejects unless the data document is changed with SetData.
var DefaultDeniedProtocols = []string{"fd", "fdclose", "av", "lavf"}

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		subprocessPolicy(),
		scriptLoadingPolicy(),
		protocolPolicy(),
		fileWritePolicy(),
	}
}

// subprocessPolicy rejects commands that spawn external processes.
func subprocessPolicy() Policy {
	return Policy{
		Name:        "subprocess",
		Description: "Rejects commands that start external processes",
		Severity:    SeverityCritical,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"process", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mpvbridge.commands.subprocess

import rego.v1

blocked := {"run", "subprocess"}

deny contains violation if {
	input.command in blocked
	violation := {
		"message": sprintf("command %s starts an external process", [input.command]),
		"severity": "critical",
	}
}
`,
	}
}

// scriptLoadingPolicy rejects loading scripts or config at runtime.
func scriptLoadingPolicy() Policy {
	return Policy{
		Name:        "script-loading",
		Description: "Rejects loading scripts, config files and IPC servers at runtime",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"scripts", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mpvbridge.commands.scripts

import rego.v1

blocked := {"load-script", "load-config-file", "load-input-conf"}

guarded_properties := {"scripts", "script", "input-ipc-server", "input-conf"}

deny contains violation if {
	input.command in blocked
	violation := {
		"message": sprintf("command %s loads code at runtime", [input.command]),
		"severity": "error",
	}
}

deny contains violation if {
	input.command in {"set", "change-list", "add", "cycle"}
	count(input.args) > 0
	input.args[0] in guarded_properties
	violation := {
		"message": sprintf("property %s cannot be changed at runtime", [input.args[0]]),
		"severity": "error",
	}
}
`,
	}
}

// protocolPolicy rejects loadfile targets on denied protocols. The list
// lives in data.settings.denied_protocols.
func protocolPolicy() Policy {
	return Policy{
		Name:        "protocols",
		Description: "Rejects loadfile and loadlist targets using denied protocols",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"media", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mpvbridge.commands.protocols

import rego.v1

deny contains violation if {
	input.command in {"loadfile", "loadlist"}
	count(input.args) > 0
	target := input.args[0]
	is_string(target)
	indexof(target, "://") > 0
	scheme := lower(split(target, "://")[0])
	scheme in data.settings.denied_protocols
	violation := {
		"message": sprintf("protocol %s is not allowed", [scheme]),
		"severity": "error",
	}
}
`,
	}
}

// fileWritePolicy warns about commands that write files on the host.
func fileWritePolicy() Policy {
	return Policy{
		Name:        "file-writes",
		Description: "Warns about commands that write files",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"filesystem"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mpvbridge.commands.files

import rego.v1

writers := {"screenshot-to-file", "dump-cache", "ab-loop-dump-cache"}

deny contains violation if {
	input.command in writers
	violation := {
		"message": sprintf("command %s writes to the filesystem", [input.command]),
		"severity": "warning",
	}
}
`,
	}
}
