package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/apierror"
	"github.com/researchlab/labsite/internal/content"
	"github.com/researchlab/labsite/internal/content/service"
)

// maxBodyBytes bounds JSON payloads sent to the mutation endpoints.
const maxBodyBytes = 1 << 20

// RegisterContentRoutes mounts /data. Reads are public; mutations go through
// the given auth middleware first.
func RegisterContentRoutes(r gin.IRouter, svc *service.Service, auth gin.HandlerFunc) {
	d := r.Group("/data")
	d.GET("/:section", func(c *gin.Context) {
		raw, err := svc.List(c.Request.Context(), c.Param("section"))
		if err != nil {
			apierror.Handle(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
	})

	d.GET("/:section/:id", func(c *gin.Context) {
		rec, err := svc.Get(c.Request.Context(), c.Param("section"), c.Param("id"))
		if err != nil {
			apierror.Handle(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	d.POST("/:section", auth, func(c *gin.Context) {
		payload, ok := bindRecord(c)
		if !ok {
			return
		}
		section := c.Param("section")
		res, err := svc.Append(c.Request.Context(), section, payload)
		if err != nil {
			apierror.Handle(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Section '%s' updated successfully", section),
			"record":  res.Record,
			"cleanup": res.Cleanup,
		})
	})

	d.PATCH("/:section/:id", auth, func(c *gin.Context) {
		patch, ok := bindRecord(c)
		if !ok {
			return
		}
		id := c.Param("id")
		res, err := svc.Update(c.Request.Context(), c.Param("section"), id, patch)
		if err != nil {
			apierror.Handle(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     fmt.Sprintf("Entry %s updated successfully", id),
			"updatedData": res.Record,
			"cleanup":     res.Cleanup,
		})
	})

	d.DELETE("/:section/:id", auth, func(c *gin.Context) {
		id := c.Param("id")
		res, err := svc.Delete(c.Request.Context(), c.Param("section"), id)
		if err != nil {
			apierror.Handle(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Entry %s deleted successfully", id),
			"cleanup": res.Cleanup,
		})
	})
}

// bindRecord reads a JSON object body, keeping numbers exact.
func bindRecord(c *gin.Context) (content.Record, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		apierror.Handle(c, apierror.BadRequest(err))
		return nil, false
	}
	rec, err := content.DecodeObject(body)
	if err != nil {
		apierror.Handle(c, err)
		return nil, false
	}
	return rec, true
}
