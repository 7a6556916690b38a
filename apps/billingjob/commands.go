package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/adbilling/internal/observability/metrics"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "billingjob",
		Short: "Run ad billing batch jobs",
		Long: `billingjob triggers the billing batches that an external scheduler fires:
invoice generation, partner earnings generation and report exports.

Each run acts as the system actor and holds a Redis lease per job when
REDIS_ADDR is set. Metrics are pushed on exit when METRICS_PUSH_EXPORTER is set.`,
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateInvoicesCmd(), newGenerateEarningsCmd(), newReportCmd())
	return root
}

func newGenerateInvoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-invoices",
		Short: "Generate invoices for campaigns without an open invoice",
		Example: `  billingjob generate-invoices --campaign 1790001 --campaign 1790002
  billingjob generate-invoices --campaign 1790001 --due-date 2025-05-31 --tax-rate 0.11`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := invoiceRequest(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd, obsmetrics.JobGenerateInvoices, func(ctx context.Context, d deps) (any, error) {
				return d.InvoiceSvc.GenerateInvoices(ctx, req)
			})
		},
	}
	cmd.Flags().StringSlice("campaign", nil, "Campaign id to invoice (repeatable)")
	cmd.Flags().String("due-date", "", "Due date (YYYY-MM-DD), default: today plus the configured due days")
	cmd.Flags().String("tax-rate", "", "Tax rate override between 0 and 1")
	_ = cmd.MarkFlagRequired("campaign")
	return cmd
}

func newGenerateEarningsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate-earnings",
		Short:   "Compute partner earnings for a period",
		Example: `  billingjob generate-earnings --start 2025-03-01 --end 2025-04-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := earningsRequest(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd, obsmetrics.JobGenerateEarnings, func(ctx context.Context, d deps) (any, error) {
				return d.EarningSvc.GenerateEarnings(ctx, req)
			})
		},
	}
	cmd.Flags().String("start", "", "Period start (YYYY-MM-DD), inclusive")
	cmd.Flags().String("end", "", "Period end (YYYY-MM-DD), exclusive")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a revenue, payouts, invoices or payment-methods report",
		Example: `  billingjob report --type revenue --granularity week --start 2025-01-01 --end 2025-03-31
  billingjob report --type payment-methods --out ./reports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := reportRequest(cmd)
			if err != nil {
				return err
			}
			outDir, _ := cmd.Flags().GetString("out")
			return runJob(cmd, "report", func(ctx context.Context, d deps) (any, error) {
				if strings.TrimSpace(outDir) == "" {
					return d.ReportSvc.Report(ctx, req)
				}
				data, filename, err := d.ReportSvc.Export(ctx, req)
				if err != nil {
					return nil, err
				}
				path, err := writeExport(outDir, filename, data)
				if err != nil {
					return nil, err
				}
				return map[string]any{"file": path, "bytes": len(data)}, nil
			})
		},
	}
	cmd.Flags().String("type", string(reportingdomain.ReportRevenue), "Report type: revenue, payouts, invoices, payment-methods")
	cmd.Flags().String("granularity", "", "Bucket size: day, week, month, quarter, year")
	cmd.Flags().String("start", "", "Range start (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Range end (YYYY-MM-DD), inclusive")
	cmd.Flags().String("out", "", "Write an XLSX export into this directory instead of printing JSON")
	return cmd
}

func invoiceRequest(cmd *cobra.Command) (invoicedomain.GenerateRequest, error) {
	campaigns, _ := cmd.Flags().GetStringSlice("campaign")
	req := invoicedomain.GenerateRequest{CampaignIDs: campaigns}

	due, err := optionalDate(cmd, "due-date")
	if err != nil {
		return req, err
	}
	req.DueDate = due

	if raw, _ := cmd.Flags().GetString("tax-rate"); strings.TrimSpace(raw) != "" {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return req, fmt.Errorf("invalid --tax-rate %q: %w", raw, err)
		}
		req.TaxRate = &rate
	}
	return req, nil
}

func earningsRequest(cmd *cobra.Command) (earningdomain.GenerateRequest, error) {
	start, err := optionalDate(cmd, "start")
	if err != nil {
		return earningdomain.GenerateRequest{}, err
	}
	end, err := optionalDate(cmd, "end")
	if err != nil {
		return earningdomain.GenerateRequest{}, err
	}
	if start == nil || end == nil {
		return earningdomain.GenerateRequest{}, fmt.Errorf("--start and --end are required")
	}
	return earningdomain.GenerateRequest{Start: *start, End: *end}, nil
}

func reportRequest(cmd *cobra.Command) (reportingdomain.ReportRequest, error) {
	reportType, _ := cmd.Flags().GetString("type")
	granularity, _ := cmd.Flags().GetString("granularity")
	req := reportingdomain.ReportRequest{Type: reportType, Granularity: granularity}

	start, err := optionalDate(cmd, "start")
	if err != nil {
		return req, err
	}
	end, err := optionalDate(cmd, "end")
	if err != nil {
		return req, err
	}
	req.Start, req.End = start, end
	return req, nil
}

func optionalDate(cmd *cobra.Command, flag string) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(flag)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, want YYYY-MM-DD", flag, raw)
	}
	return &parsed, nil
}

func writeExport(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
