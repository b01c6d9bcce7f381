// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all search routes with the router.
//
// Description:
//
//	Registers the /v1/search/* endpoints with the given Gin router group.
//	The group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/search - Answer a natural-language stock query
//	GET  /v1/search/health - Health check
//
// Example:
//
//	service, _ := search.New(cfg, logger)
//	handlers := search.NewHandlers(service, logger)
//
//	v1 := router.Group("/v1")
//	search.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	search := rg.Group("/search")
	{
		search.POST("", handlers.HandleSearch)
		search.GET("/health", handlers.HandleHealth)
	}
}
