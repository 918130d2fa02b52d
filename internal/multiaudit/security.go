// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package multiaudit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/skillsfabric/core/internal/claims"
)

// Security agent patterns (spec §4.7's security row). Each maps a
// dangerous construct in generated example code to a critical issue;
// the agent fails on any critical.
var (
	sqlInterpPattern  = regexp.MustCompile(`execute\(\s*(?:f["']|["'][^"']*%s)`)
	osSystemPattern   = regexp.MustCompile(`os\.system\(`)
	subprocessConcat  = regexp.MustCompile(`subprocess\.\w+\([^)]*\+`)
	shellTruePattern  = regexp.MustCompile(`shell\s*=\s*True`)
	hardcodedSecret   = regexp.MustCompile(`(?i)(password|api_key|secret|token)\s*=\s*["'][^"']+["']`)
	pickleLoads       = regexp.MustCompile(`pickle\.loads?\(`)
	yamlLoadPattern   = regexp.MustCompile(`yaml\.load\(`)
	evalExecPattern   = regexp.MustCompile(`\b(eval|exec|__import__)\(`)
	safeLoaderPattern = regexp.MustCompile(`SafeLoader|safe_load`)
)

// scanSecurity flags injection vectors, unsafe deserialization, shell
// escapes, and hardcoded credentials in skill content.
func scanSecurity(content string) []Issue {
	var issues []Issue
	flag := func(category, description, location string) {
		issues = append(issues, Issue{
			Category:    category,
			Severity:    claims.SeverityCritical,
			Description: description,
			Location:    location,
			Confidence:  0.9,
			Agent:       AgentSecurity,
		})
	}

	for i, line := range strings.Split(content, "\n") {
		loc := lineLoc(i)
		switch {
		case sqlInterpPattern.MatchString(line):
			flag("sql_injection", "SQL built by string interpolation inside execute()", loc)
		case osSystemPattern.MatchString(line):
			flag("command_injection", "os.system() runs through the shell", loc)
		case subprocessConcat.MatchString(line):
			flag("command_injection", "subprocess argument built by string concatenation", loc)
		case shellTruePattern.MatchString(line):
			flag("command_injection", "subprocess invoked with shell=True", loc)
		case hardcodedSecret.MatchString(line):
			flag("hardcoded_secret", "credential assigned from a string literal", loc)
		case pickleLoads.MatchString(line):
			flag("unsafe_deserialization", "pickle.loads on untrusted input executes arbitrary code", loc)
		case yamlLoadPattern.MatchString(line) && !safeLoaderPattern.MatchString(line):
			flag("unsafe_deserialization", "yaml.load without a safe loader", loc)
		case evalExecPattern.MatchString(line):
			flag("code_execution", "eval/exec/__import__ on dynamic input", loc)
		}
	}
	return issues
}

func lineLoc(zeroBasedIdx int) string {
	return "line " + strconv.Itoa(zeroBasedIdx+1)
}
