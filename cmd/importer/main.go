package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/app"
)

func main() {
	var (
		configPath = flag.String("config", "config.toml", "Path to config file")
		file       = flag.String("file", "", "CSV sheet to import")
		exportPath = flag.String("export", "", "Write the resulting sheet to this path")
		class      = flag.String("class", "", "Limit the export and rank list to one class")
	)
	flag.Parse()

	if *file == "" && *exportPath == "" {
		color.Red("Nothing to do: pass -file and/or -export")
		flag.Usage()
		os.Exit(2)
	}

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	ctx := context.Background()

	if *file != "" {
		if err := importFile(ctx, service, *file); err != nil {
			color.Red("Import failed: %v", err)
			os.Exit(1)
		}
		if *class != "" {
			if err := printRanklist(ctx, service, *class); err != nil {
				color.Red("Rank list failed: %v", err)
			}
		}
	}

	if *exportPath != "" {
		if err := exportFile(ctx, service, *exportPath, *class); err != nil {
			color.Red("Export failed: %v", err)
			os.Exit(1)
		}
		color.Green("Exported to %s", *exportPath)
	}
}

func importFile(ctx context.Context, service *app.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	report, err := service.ImportStudents(ctx, f)
	if err != nil {
		return err
	}

	color.Cyan("\n=== Import of %s ===", path)
	fmt.Printf("Rows read:   %d\n", report.Rows)
	color.Green("Imported:    %d", report.Imported)
	if len(report.Errors) == 0 {
		return nil
	}

	color.Red("Rejected:    %d", len(report.Errors))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Row", "Admission No", "Problem"})
	for _, e := range report.Errors {
		table.Append([]string{fmt.Sprintf("%d", e.Row), e.AdmissionNo, e.Message})
	}
	table.Render()

	if report.Batch != nil && report.Batch.RankingError != "" {
		color.Yellow("Ranking is behind, run the verifier: %s", report.Batch.RankingError)
	}
	return nil
}

func printRanklist(ctx context.Context, service *app.Service, class string) error {
	students, err := service.ClassRanklist(ctx, class)
	if err != nil {
		return err
	}

	color.Yellow("\nRank list: %s", class)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "Admission No", "Name", "Total", "Average", "Level"})
	for _, s := range students {
		table.Append([]string{
			fmt.Sprintf("%d", s.Rank),
			s.AdmissionNo,
			s.Name,
			fmt.Sprintf("%.2f", s.GrandTotal),
			fmt.Sprintf("%.2f", s.Average),
			string(s.PerformanceLevel),
		})
	}
	table.Render()
	return nil
}

func exportFile(ctx context.Context, service *app.Service, path, class string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	if err := service.ExportStudents(ctx, f, class); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
