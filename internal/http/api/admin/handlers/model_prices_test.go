package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ledgergate/ledgergate/internal/models"
	"gorm.io/gorm"
)

func newModelPriceRouter(conn *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", testActorID)
		c.Set("orgID", testOrgID)
	})
	prices := NewModelPriceAdminHandler(conn)
	router.GET("/v1/admin/model-prices", prices.List)
	router.PUT("/v1/admin/model-prices/:model", prices.Upsert)
	return router
}

func putModelPrice(router *gin.Engine, modelID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/model-prices/"+modelID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestModelPriceUpsertCreatesAndUpdates(t *testing.T) {
	conn := setupAdminDB(t)
	router := newModelPriceRouter(conn)

	rec := putModelPrice(router, "gpt-4o", `{"input_usd_per_m": "2.5", "output_usd_per_m": "10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var row models.ModelPrice
	if errFind := conn.Where("org_id = ? AND model_id = ?", testOrgID, "gpt-4o").First(&row).Error; errFind != nil {
		t.Fatalf("load row: %v", errFind)
	}
	if !row.Enabled {
		t.Fatal("row not enabled by default")
	}
	if row.InputUSDMicrosPerM == nil || *row.InputUSDMicrosPerM != 2_500_000 {
		t.Fatalf("input price = %v", row.InputUSDMicrosPerM)
	}
	if row.OutputUSDMicrosPerM == nil || *row.OutputUSDMicrosPerM != 10_000_000 {
		t.Fatalf("output price = %v", row.OutputUSDMicrosPerM)
	}

	// Second write replaces the same org+model row.
	rec = putModelPrice(router, "gpt-4o", `{"enabled": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var count int64
	if errCount := conn.Model(&models.ModelPrice{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count rows: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
	if errFind := conn.Where("org_id = ? AND model_id = ?", testOrgID, "gpt-4o").First(&row).Error; errFind != nil {
		t.Fatalf("reload row: %v", errFind)
	}
	if row.Enabled {
		t.Fatal("row still enabled after disable")
	}
}

func TestModelPriceUpsertRejectsBadPrice(t *testing.T) {
	conn := setupAdminDB(t)
	router := newModelPriceRouter(conn)

	rec := putModelPrice(router, "gpt-4o", `{"input_usd_per_m": "-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var count int64
	if errCount := conn.Model(&models.ModelPrice{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count rows: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("rows = %d, want 0", count)
	}
}

func TestModelPriceListIsOrgScoped(t *testing.T) {
	conn := setupAdminDB(t)
	mine := models.ModelPrice{OrgID: testOrgID, ModelID: "gpt-4o", Enabled: true}
	other := models.ModelPrice{OrgID: testOrgID + 1, ModelID: "gpt-4o-mini", Enabled: true}
	if errCreate := conn.Create(&mine).Error; errCreate != nil {
		t.Fatalf("create row: %v", errCreate)
	}
	if errCreate := conn.Create(&other).Error; errCreate != nil {
		t.Fatalf("create row: %v", errCreate)
	}

	router := newModelPriceRouter(conn)
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/model-prices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "gpt-4o") {
		t.Fatalf("missing own row: %s", body)
	}
	if strings.Contains(body, "gpt-4o-mini") {
		t.Fatalf("other org row leaked: %s", body)
	}
}
