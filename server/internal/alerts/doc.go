// Package alerts implements the rule evaluation engine and webhook delivery
// for evaluation records. Rules are "field op value" expressions evaluated
// against every stored record; firing and resolution are tracked per rule and
// scenario and delivered to Teams, Slack, PagerDuty or generic HTTP targets.
package alerts
