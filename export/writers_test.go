package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-book-catalog/models"
)

var sample = []models.Record{
	{ID: 1, Title: "Dune", Author: "Frank Herbert", Sales: 12},
	{ID: 2, Title: "Emma, a Novel", Author: "Jane Austen", Sales: 0},
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")

	if err := Records("csv", path, sample); err != nil {
		t.Fatalf("export csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	if rows[0][0] != "id" || rows[0][3] != "sales" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[2][1] != "Emma, a Novel" || rows[2][3] != "0" {
		t.Fatalf("unexpected row: %v", rows[2])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "books.jsonl")

	if err := Records("json", path, sample); err != nil {
		t.Fatalf("export json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.Record
	for scanner.Scan() {
		var r models.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, r)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 || decoded[0] != sample[0] {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "books.csv")

	if err := Records("dual", csvPath, sample); err != nil {
		t.Fatalf("export dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "books.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewWriterUnsupportedFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
