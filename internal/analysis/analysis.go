// Package analysis compares interest tags for matchmaking and scores the
// severity of user reports.
package analysis

import "pairchat/backend/internal/config"

// GetWeight returns the weight (penalty) for a given complaint severity.
// It returns 0 if the severity is not recognized.
func GetWeight(severity string) int {
	return config.ComplaintWeights[severity]
}
