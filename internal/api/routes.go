package api

import "github.com/labstack/echo/v4"

// RegisterHandlers mounts every endpoint on g, normally the /api/v1 group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/health", s.HandleHealth)

	g.PUT("/workflows", s.PutWorkflow)
	g.GET("/workflows/:code", s.GetWorkflow)
	g.GET("/workflows/:code/next", s.NextAction)
	g.GET("/workflows/:code/progress/:app_id", s.WorkflowProgress)

	g.POST("/process-logs", s.InsertProcessLog)
	g.PATCH("/process-logs/:id", s.UpdateProcessLog)
	g.DELETE("/process-logs/:id", s.DeleteProcessLog)

	g.GET("/applications/:app_id/latest", s.LatestProcessLog)
	g.GET("/applications/:app_id/history", s.ProcessLogHistory)
	g.GET("/applications/:app_id/dependencies/:source", s.CheckDependency)

	g.GET("/ttables/:app_id", s.GetTTable)
	g.PUT("/ttables/:app_id", s.PutTTable)
	g.POST("/ttables/:app_id/decision-results", s.MergeDecisionResults)

	g.POST("/steps", s.RunStep)
}
