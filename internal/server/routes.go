package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.ListDevicesHandler)
	e.GET("/devices/:id/measurements", s.MeasurementsHandler)
	e.POST("/devices/:id/reset_energy", s.ResetEnergyHandler)

	return e
}

type measurementsDTO struct {
	Device             string    `json:"device"`
	Voltage            float64   `json:"voltage"`
	Current            float64   `json:"current"`
	Power              float64   `json:"power"`
	Energy             float64   `json:"energy"`
	Frequency          float64   `json:"frequency"`
	PowerFactor        float64   `json:"power_factor"`
	MonthlyConsumption float64   `json:"monthly_consumption"`
	Tier               int       `json:"tier"`
	UnitPrice          float64   `json:"unit_price"`
	CumulativeCost     float64   `json:"cumulative_cost"`
	LastPoll           time.Time `json:"last_poll"`
	LastError          string    `json:"last_error,omitempty"`
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ListDevicesRequest{}, 5*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.ListDevicesResponse)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	devices := make([]string, 0, len(response.Devices))
	for _, id := range response.Devices {
		devices = append(devices, string(id))
	}
	return c.JSON(http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) MeasurementsHandler(c echo.Context) error {
	device := domain.DeviceID(c.Param("id"))
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLiveDataRequest{Device: device}, 5*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetLiveDataResponse)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	if response.Snapshot == nil {
		// no successful poll yet
		return c.NoContent(http.StatusNoContent)
	}
	dto := measurementsDTO{
		Device:      string(response.Device),
		Voltage:     response.Snapshot.Voltage,
		Current:     response.Snapshot.Current,
		Power:       response.Snapshot.PowerWatt,
		Energy:      response.Snapshot.EnergyKWh,
		Frequency:   response.Snapshot.Frequency,
		PowerFactor: response.Snapshot.PowerFactor,
		LastPoll:    response.LastPoll,
		LastError:   string(response.LastErr),
	}
	if response.Billing != nil {
		dto.MonthlyConsumption = response.Billing.MonthlyConsumptionKWh
		dto.Tier = response.Billing.Tier
		dto.UnitPrice = response.Billing.UnitPrice
		dto.CumulativeCost = response.Billing.CumulativeCost
	}
	return c.JSON(http.StatusOK, dto)
}

func (s *Server) ResetEnergyHandler(c echo.Context) error {
	device := domain.DeviceID(c.Param("id"))
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ResetEnergyRequest{Device: device}, 15*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.ResetEnergyResponse)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	if response.HasResponseError() {
		return c.String(http.StatusBadGateway, response.GetResponseError().Error())
	}
	return c.NoContent(http.StatusAccepted)
}
