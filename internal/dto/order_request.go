package dto

type CreateOrderRequest struct {
	Address    string `json:"address"`
	ReportType string `json:"reportType"`
}
