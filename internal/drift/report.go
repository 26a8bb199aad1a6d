package drift

import "fmt"

// Report aggregates the issues of one dependency with severity totals.
type Report struct {
	Dependency  string  `json:"dependency_name"`
	TotalIssues int     `json:"total_issues"`
	Errors      int     `json:"errors"`
	Warnings    int     `json:"warnings"`
	Issues      []Issue `json:"issues"`
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
}

// Summarize builds a Report from a dependency's issue list.
func Summarize(dependency string, issues []Issue) Report {
	errors, warnings := 0, 0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	if len(issues) == 0 {
		return Report{
			Dependency: dependency,
			Issues:     []Issue{},
			Success:    true,
			Message:    fmt.Sprintf("All API calls align with %s contract", dependency),
		}
	}
	return Report{
		Dependency:  dependency,
		TotalIssues: len(issues),
		Errors:      errors,
		Warnings:    warnings,
		Issues:      issues,
		Message:     fmt.Sprintf("Found %d drift issue(s) with %s contract", len(issues), dependency),
	}
}
