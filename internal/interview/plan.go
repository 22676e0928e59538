package interview

import "github.com/mavrk/jobvine/internal/session"

// Question plans are static per role. The cursor lives in the session.
var managerPlan = []string{
	"What will this person actually do in their first three months?",
	"Which skills are hard requirements, and which are nice to have?",
	"How is the team organized and who will they work with day to day?",
	"What is the salary range and what does the hiring process look like?",
}

var candidatePlan = []string{
	"Tell me about the most recent project you are proud of. What was your part in it?",
	"Which technologies do you feel strongest in, and how long have you used them in production?",
	"What kind of role and team are you looking for next?",
	"What are your salary expectations and when could you start?",
}

// Mandatory profile fields collected after the main interview.
var managerMandatoryFields = []string{"company name", "location or remote policy", "contact email"}

var candidateMandatoryFields = []string{"location and time zone", "work permit or relocation constraints", "contact email"}

// PlanFor returns the question plan for a role.
func PlanFor(role session.Role) []string {
	if role == session.RoleManager {
		return managerPlan
	}
	return candidatePlan
}

// MandatoryFieldsFor returns the profile fields that must be filled before a
// profile is complete.
func MandatoryFieldsFor(role session.Role) []string {
	if role == session.RoleManager {
		return managerMandatoryFields
	}
	return candidateMandatoryFields
}
