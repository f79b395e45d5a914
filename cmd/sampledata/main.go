// Command sampledata writes a 100-row product workbook for trying out rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/eliaszeru/Excel-splitter/dataset"
	"github.com/eliaszeru/Excel-splitter/internal/logger"
	"github.com/eliaszeru/Excel-splitter/output"
)

var (
	categories   = []string{"Shirts", "Pants", "Dresses", "Shoes", "Accessories", "Outerwear"}
	seasons      = []string{"Spring", "Summer", "Fall", "Winter"}
	genders      = []string{"Men", "Women", "Unisex"}
	colors       = []string{"Black", "White", "Blue", "Red", "Green", "Brown", "Gray", "Pink"}
	sizes        = []string{"XS", "S", "M", "L", "XL", "XXL"}
	regions      = []string{"North America", "Europe", "Asia", "South America", "Africa"}
	priceRanges  = []string{"Budget", "Mid-range", "Premium", "Luxury"}
	sampleHeader = []string{
		"Product_ID", "Product_Name", "Category", "Season", "Gender", "Color", "Size",
		"Region", "Price_Range", "Price", "Stock_Quantity", "Active", "Launch_Date",
	}
)

// generate builds n product rows. The same seed and now give the same rows.
func generate(n int, seed int64, now time.Time) (*dataset.Dataset, error) {
	rng := rand.New(rand.NewSource(seed))
	pick := func(values []string) dataset.Cell {
		return dataset.StringCell(values[rng.Intn(len(values))])
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	rows := make([]dataset.Row, n)
	for i := range rows {
		price := math.Round((25+rng.Float64()*475)*100) / 100
		active := "Yes"
		if rng.Intn(2) == 1 {
			active = "No"
		}
		rows[i] = dataset.Row{
			dataset.StringCell(fmt.Sprintf("PROD%03d", i+1)),
			dataset.StringCell(fmt.Sprintf("Product %d", i+1)),
			pick(categories),
			pick(seasons),
			pick(genders),
			pick(colors),
			pick(sizes),
			pick(regions),
			pick(priceRanges),
			dataset.NumberCell(price),
			dataset.NumberCell(float64(rng.Intn(100))),
			dataset.StringCell(active),
			dataset.DateCell(today.AddDate(0, 0, -rng.Intn(365))),
		}
	}
	return dataset.New("sample_data.xlsx", sampleHeader, rows)
}

func main() {
	var path string
	var rows int
	var seed int64
	flag.StringVar(&path, "out", "sample_data.xlsx", "Workbook to write (.xlsx or .csv)")
	flag.IntVar(&rows, "rows", 100, "Number of product rows")
	flag.Int64Var(&seed, "seed", 42, "Random seed")
	flag.Parse()

	if rows <= 0 {
		logger.Fatal("-rows must be positive", "rows", rows)
	}

	ds, err := generate(rows, seed, time.Now())
	if err != nil {
		logger.Fatal("Failed to generate sample data", "error", err)
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatal("Failed to create output directory", "dir", dir, "error", err)
	}
	writer, err := output.New(&output.Options{OutputDir: dir})
	if err != nil {
		logger.Fatal("Failed to create writer", "error", err)
	}
	if _, err := writer.Write(context.Background(), name, ds.Columns(), ds.Rows()); err != nil {
		logger.Fatal("Failed to write sample data", "path", path, "error", err)
	}

	logger.Info("Sample data created", "path", path, "rows", ds.Len(), "columns", ds.Columns())
	fmt.Println("Example rules to try:")
	fmt.Println(`  {"rule_type": "single", "column1": "Category", "value1": "Shirts"}`)
	fmt.Println(`  {"rule_type": "and", "column1": "Gender", "value1": "Men", "column2": "Season", "value2": "Winter"}`)
	fmt.Println(`  {"rule_type": "or", "column1": "Color", "value1": "Black", "column2": "Color", "value2": "White"}`)
	fmt.Println(`  {"rule_type": "and", "column1": "Price_Range", "value1": "Premium", "column2": "Region", "value2": "North America"}`)
}
