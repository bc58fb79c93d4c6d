package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-book-catalog/catalog"
	"github.com/aluiziolira/go-book-catalog/detail"
	"github.com/aluiziolira/go-book-catalog/export"
	"github.com/aluiziolira/go-book-catalog/listing"
	"github.com/aluiziolira/go-book-catalog/models"
	"github.com/aluiziolira/go-book-catalog/parser"
	"github.com/peterh/liner"
)

const helpText = `list view:
  search TITLE | AUTHOR   filter by substrings (either side may be empty)
  page N | next | prev    go to page N (1-based)
  size N                  rows per page
  refresh                 reload the current page
  select ID...            toggle row selection
  all                     toggle selection of every row on the page
  delete                  delete the selected rows
  add TITLE | AUTHOR      create a record
  open ID                 open the detail view
  export FILE [csv|json|dual]
detail view:
  sales N | sales -       edit sales (- clears the input)
  commit                  save sales
  remove                  delete the record
  back                    return to the list
  help, quit`

// shell is a line-oriented front end over the list and detail engines.
type shell struct {
	list   *listing.Engine
	detail *detail.Engine
	out    io.Writer

	inDetail    bool
	needRefresh bool
	notice      string
}

func newShell(client *catalog.Client, pageSize int, out io.Writer) *shell {
	s := &shell{out: out}
	s.list = listing.NewEngine(client, pageSize)
	s.detail = detail.NewEngine(client,
		detail.WithOnUpdated(func(r models.Record) {
			s.notice = fmt.Sprintf("sales of %q updated to %d", r.Title, r.Sales)
			s.needRefresh = true
		}),
		detail.WithOnRemoved(func(id int64) {
			s.notice = fmt.Sprintf("record %d deleted", id)
			s.inDetail = false
			s.needRefresh = true
			s.detail.Reset()
		}),
	)
	return s
}

func (s *shell) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyFile()
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	s.report(s.list.Refresh(ctx))
	s.render()

	for ctx.Err() == nil {
		input, err := line.Prompt(s.prompt())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if quit := s.exec(ctx, input); quit {
			return nil
		}
		s.render()
	}
	return nil
}

func (s *shell) runOnce(ctx context.Context, input string) error {
	if err := s.list.Refresh(ctx); err != nil {
		return err
	}
	s.exec(ctx, input)
	s.render()
	return nil
}

func (s *shell) prompt() string {
	if s.inDetail {
		return fmt.Sprintf("catalog/%d> ", s.detail.State().ID)
	}
	return "catalog> "
}

// exec runs one command and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		s.notice = helpText
		return false
	}

	if s.inDetail {
		s.execDetail(ctx, cmd, rest)
	} else {
		s.execList(ctx, cmd, rest)
	}

	if s.needRefresh {
		s.needRefresh = false
		s.report(s.list.Refresh(ctx))
	}
	return false
}

func (s *shell) execList(ctx context.Context, cmd, rest string) {
	switch cmd {
	case "search":
		title, author := splitPair(rest)
		s.report(s.list.SetFilter(ctx, parser.NormalizeFilter(models.Filter{Title: title, Author: author})))
	case "page":
		n, err := strconv.Atoi(rest)
		if err != nil {
			s.notice = "usage: page N"
			return
		}
		s.report(s.list.SetPage(ctx, n-1))
	case "next", "prev":
		index := s.list.State().PageIndex
		if cmd == "next" {
			index++
		} else {
			index--
		}
		s.report(s.list.SetPage(ctx, index))
	case "size":
		n, err := strconv.Atoi(rest)
		if err != nil {
			s.notice = "usage: size N"
			return
		}
		s.report(s.list.SetPageSize(ctx, n))
	case "refresh":
		s.report(s.list.Refresh(ctx))
	case "select":
		for _, field := range strings.Fields(rest) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				s.notice = fmt.Sprintf("invalid id %q", field)
				return
			}
			if err := s.list.ToggleSelect(id); err != nil {
				s.report(err)
				return
			}
		}
	case "all":
		s.list.ToggleSelectAll()
	case "delete":
		n := len(s.list.Selected())
		if err := s.list.DeleteSelected(ctx); err != nil {
			s.report(err)
			return
		}
		s.notice = fmt.Sprintf("%d record(s) deleted", n)
	case "add":
		title, author := splitPair(rest)
		rec, err := s.list.Create(ctx, title, author)
		if err != nil {
			s.report(err)
			return
		}
		s.notice = fmt.Sprintf("record %d added", rec.ID)
	case "open":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			s.notice = "usage: open ID"
			return
		}
		if err := s.detail.Load(ctx, id); err != nil {
			s.report(err)
			return
		}
		s.inDetail = true
	case "export":
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			s.notice = "usage: export FILE [csv|json|dual]"
			return
		}
		format := "csv"
		if len(fields) > 1 {
			format = fields[1]
		}
		page := s.list.State().Page
		if err := export.Records(format, fields[0], page.Items); err != nil {
			s.report(err)
			return
		}
		s.notice = fmt.Sprintf("%d record(s) written to %s", len(page.Items), fields[0])
	default:
		s.notice = fmt.Sprintf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) execDetail(ctx context.Context, cmd, rest string) {
	switch cmd {
	case "sales":
		value, err := parser.ParseSales(rest)
		if err != nil {
			s.report(err)
			return
		}
		s.report(s.detail.SetSalesField(value))
	case "commit":
		if _, err := s.detail.Commit(ctx); err != nil {
			s.report(err)
		}
	case "remove":
		s.report(s.detail.Remove(ctx))
	case "back":
		s.detail.Reset()
		s.inDetail = false
		s.needRefresh = true
	default:
		s.notice = fmt.Sprintf("unknown command %q (try help)", cmd)
	}
}

func (s *shell) report(err error) {
	if err == nil {
		return
	}
	var bulk *listing.BulkDeleteError
	switch {
	case errors.As(err, &bulk):
		s.notice = fmt.Sprintf("could not delete %d of %d record(s): %v", len(bulk.Failed), bulk.Attempted, bulk.Failed)
	case errors.Is(err, listing.ErrSuperseded), errors.Is(err, detail.ErrSuperseded):
		return
	case errors.Is(err, detail.ErrSalesEmpty):
		s.notice = "enter a sales value first"
	default:
		s.notice = err.Error()
	}
	slog.Debug("command failed", slog.Any("error", err))
}

func (s *shell) render() {
	if s.inDetail {
		s.renderDetail()
	} else {
		s.renderList()
	}
	if s.notice != "" {
		fmt.Fprintf(s.out, "\n%s\n", s.notice)
		s.notice = ""
	}
}

func (s *shell) renderList() {
	st := s.list.State()
	if st.Status == listing.StatusFailed {
		fmt.Fprintf(s.out, "failed to fetch records: %v\n", st.Err)
		return
	}

	selected := make(map[int64]bool, len(st.Selected))
	for _, id := range st.Selected {
		selected[id] = true
	}

	all := " "
	if len(st.Page.Items) > 0 && len(st.Selected) == len(st.Page.Items) {
		all = "x"
	}
	fmt.Fprintf(s.out, "\n[%s] %-4s %-6s %-32s %-24s %s\n", all, "#", "id", "title", "author", "sales")
	fmt.Fprintln(s.out, strings.Repeat("-", 80))
	for i, r := range st.Page.Items {
		mark := " "
		if selected[r.ID] {
			mark = "x"
		}
		fmt.Fprintf(s.out, "[%s] %-4d %-6d %-32s %-24s %d\n",
			mark, st.Page.PageIndex*st.Page.PageSize+i+1, r.ID, truncate(r.Title, 32), truncate(r.Author, 24), r.Sales)
	}
	if len(st.Page.Items) == 0 {
		fmt.Fprintln(s.out, "no records")
	}
	fmt.Fprintf(s.out, "\n%d-%d of %d    page %d/%d\n",
		st.Page.FirstRow(), st.Page.LastRow(), st.Page.TotalCount, st.Page.PageIndex+1, st.Page.TotalPages)
	if !st.Filter.IsZero() {
		fmt.Fprintf(s.out, "filter: title=%q author=%q\n", st.Filter.Title, st.Filter.Author)
	}
}

func (s *shell) renderDetail() {
	st := s.detail.State()
	switch st.Status {
	case detail.StatusLoaded:
		dirty := ""
		if st.Draft.Dirty() {
			dirty = " (unsaved)"
		}
		sales := st.Draft.Sales.String()
		if sales == "" {
			sales = "<empty>"
		}
		fmt.Fprintf(s.out, "\n%s\n  author: %s\n  sales:  %s%s\n", st.Draft.Record.Title, st.Draft.Record.Author, sales, dirty)
	case detail.StatusNotFound:
		fmt.Fprintf(s.out, "record %d not found\n", st.ID)
	case detail.StatusFailed:
		fmt.Fprintf(s.out, "failed to fetch record: %v\n", st.Err)
	}
}

func splitPair(text string) (string, string) {
	left, right, _ := strings.Cut(text, "|")
	return strings.TrimSpace(left), strings.TrimSpace(right)
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-1]) + "…"
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".catalog_history"
	}
	return filepath.Join(home, ".catalog_history")
}
