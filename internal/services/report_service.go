package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/timeutil"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"
)

// ReportService renders trip statements and debt listings.
type ReportService struct {
	Trips    *repositories.TripRepository
	Orders   *repositories.OrderRepository
	Expenses *repositories.TripExpenseRepository
	Payments *repositories.PaymentRepository
}

func NewReportService(trips *repositories.TripRepository, orders *repositories.OrderRepository,
	expenses *repositories.TripExpenseRepository, payments *repositories.PaymentRepository) *ReportService {
	return &ReportService{Trips: trips, Orders: orders, Expenses: expenses, Payments: payments}
}

// TripStatement is everything printed on a trip statement.
type TripStatement struct {
	Trip     *models.Trip
	Summary  models.TripSummary
	Orders   []*models.Order
	Expenses []*models.TripExpense
	Payments []*models.Payment
}

// GetTripStatement collects the data of a trip statement.
func (s *ReportService) GetTripStatement(ctx context.Context, tripID int64) (*TripStatement, error) {
	trip, err := s.Trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	orders, err := s.Orders.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.Expenses.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	payments, err := s.Payments.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return &TripStatement{
		Trip:     trip,
		Summary:  models.Summarize(trip, orders, expenses),
		Orders:   orders,
		Expenses: expenses,
		Payments: payments,
	}, nil
}

// TripStatementPDF renders the statement of a trip as a PDF document.
func (s *ReportService) TripStatementPDF(ctx context.Context, tripID int64) ([]byte, error) {
	st, err := s.GetTripStatement(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return RenderTripStatement(st)
}

func money(d decimal.Decimal) string {
	return "Rs. " + d.StringFixed(2)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// RenderTripStatement lays out a statement on A4 pages.
func RenderTripStatement(st *TripStatement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "TRIP STATEMENT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", timeutil.FormatDisplay(timeutil.Now())), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(190, 8, "Trip Details", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(40, 7, "Name:", "1", 0, "L", false, 0, "")
	pdf.CellFormat(150, 7, st.Trip.TripName, "1", 1, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Date:", "1", 0, "L", false, 0, "")
	pdf.CellFormat(150, 7, timeutil.FormatDisplay(st.Trip.TripDate), "1", 1, "L", false, 0, "")
	pdf.CellFormat(40, 7, "Status:", "1", 0, "L", false, 0, "")
	pdf.CellFormat(150, 7, string(st.Trip.Status), "1", 1, "L", false, 0, "")
	pdf.Ln(5)

	// Orders
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(190, 8, fmt.Sprintf("Orders (%d)", len(st.Orders)), "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(20, 7, "Order #", "1", 0, "C", true, 0, "")
	pdf.CellFormat(50, 7, "Customer", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Status", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Total", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Received", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Debt", "1", 1, "C", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, o := range st.Orders {
		pdf.CellFormat(20, 6, strconv.FormatInt(o.ID, 10), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, truncate(o.CustomerName, 25), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(o.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, money(o.TotalAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, money(o.PaymentReceived), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, money(o.RemainingDebt()), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)

	// Expenses
	if len(st.Expenses) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(190, 8, "Expenses", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(40, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Type", "1", 0, "C", true, 0, "")
		pdf.CellFormat(70, 7, "Description", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Amount", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, e := range st.Expenses {
			pdf.CellFormat(40, 6, e.Date.Format("02-Jan-2006"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, truncate(e.Type, 20), "1", 0, "L", false, 0, "")
			pdf.CellFormat(70, 6, truncate(e.Description, 35), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, money(e.Amount), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(5)
	}

	// Payments
	if len(st.Payments) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(190, 8, "Payment History", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(25, 7, "Receipt #", "1", 0, "C", true, 0, "")
		pdf.CellFormat(25, 7, "Order #", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(30, 7, "Kind", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Amount", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 7, "Method", "1", 1, "C", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, p := range st.Payments {
			pdf.CellFormat(25, 6, strconv.FormatInt(p.ID, 10), "1", 0, "C", false, 0, "")
			pdf.CellFormat(25, 6, strconv.FormatInt(p.OrderID, 10), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, p.PaidAt.Format("02-Jan-2006"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, string(p.Kind), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, money(p.SignedAmount()), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 6, truncate(p.Method, 20), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(5)
	}

	// Totals
	sum := st.Summary
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(190, 8, "Summary", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"Revenue", sum.Revenue},
		{"Cost of goods", sum.Cost},
		{"Gross profit", sum.GrossProfit},
		{"Expenses", sum.Expenses},
		{"Net profit", sum.NetProfit},
		{"Collected", sum.Collected},
	}
	for _, r := range rows {
		pdf.CellFormat(95, 7, r.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(95, 7, money(r.value), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 14)
	outstanding := fmt.Sprintf("Outstanding: %s", money(sum.Outstanding))
	if sum.Outstanding.IsZero() {
		outstanding = "FULLY COLLECTED"
	}
	pdf.CellFormat(190, 10, outstanding, "1", 1, "C", true, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDebtsCSV writes every order with an outstanding balance as CSV.
func (s *ReportService) WriteDebtsCSV(ctx context.Context, w io.Writer) error {
	debts, err := s.Orders.Debts(ctx)
	if err != nil {
		return err
	}
	return EncodeDebtsCSV(w, debts)
}

// EncodeDebtsCSV writes debt rows with a header line.
func EncodeDebtsCSV(w io.Writer, debts []models.DebtView) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"Order ID", "Customer ID", "Customer", "Order Date", "Status", "Trip ID", "Total", "Received", "Debt"})
	for _, d := range debts {
		trip := ""
		if d.TripID != nil {
			trip = strconv.FormatInt(*d.TripID, 10)
		}
		cw.Write([]string{
			strconv.FormatInt(d.OrderID, 10),
			strconv.FormatInt(d.CustomerID, 10),
			d.CustomerName,
			d.OrderDate.Format(timeutil.DateLayout),
			string(d.Status),
			trip,
			d.TotalAmount.StringFixed(2),
			d.PaymentReceived.StringFixed(2),
			d.Debt.StringFixed(2),
		})
	}
	cw.Flush()
	return cw.Error()
}
