package search

import (
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/models"
)

// ProcessQuery validates req and fills top-k and mode from the retrieval defaults.
func ProcessQuery(req *models.QueryRequest, cfg config.RetrievalConfig) error {
	return req.Validate(cfg.TopK, models.SearchMode(cfg.Mode))
}
