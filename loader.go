package dal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const defaultLoadBatchSize = 500

// LoadCSV reads records from csv and writes them with BatchInsert, batchSize
// records per batch. With a header line the columns may come in any order;
// without one every line must carry all table columns in table order. Empty
// cells load as NULL. It returns the number of rows written. A malformed line
// stops the load before the pending batch is written; batches written before it
// stay unless hints carry a transaction.
func LoadCSV[T any](ctx context.Context, dao *TableDao[T], input io.Reader, withHeader bool, batchSize int, hints *Hints) (int, error) {
	def := dao.TableDef()
	columns := def.ColumnNames()

	rd := csv.NewReader(input)
	rd.TrimLeadingSpace = true

	if withHeader {
		line, err := rd.Read()
		if err != nil {
			return 0, fmt.Errorf("read csv header: %w", err)
		}

		columns = make([]string, len(line))
		for i, name := range line {
			col, ok := def.Column(strings.TrimSpace(name))
			if !ok {
				return 0, invalidArg("csv column %q is not a column of %s", name, def.Name)
			}
			columns[i] = col.Name
		}
	}
	rd.FieldsPerRecord = len(columns)

	loadCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	recs := make(chan *T)
	readErr := make(chan error, 1)
	go func() {
		defer close(recs)
		err := readCSVRecords(loadCtx, rd, columns, dao.parser, recs)
		if err != nil {
			abort(err)
		}
		readErr <- err
	}()

	total, err := StreamInsert(loadCtx, dao, recs, batchSize, hints)
	abort(err)
	for range recs {
	}

	if rerr := <-readErr; rerr != nil && !errors.Is(rerr, context.Canceled) {
		return total, rerr
	}
	return total, err
}

func readCSVRecords[T any](ctx context.Context, rd *csv.Reader, columns []string, parser Parser[T], out chan<- *T) error {
	for line := 1; ; line++ {
		cells, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}

		row := make(map[string]any, len(cells))
		for i, cell := range cells {
			if cell = strings.TrimSpace(cell); cell != "" {
				row[columns[i]] = cell
			}
		}

		rec, err := parser.Map(row)
		if err != nil {
			return fmt.Errorf("csv line %d: %w", line, err)
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StreamInsert writes the records received from recs with BatchInsert, batchSize
// records per batch, until recs is closed. It returns the number of rows
// written. Pass a transaction in hints to make the whole stream atomic. Once ctx
// is done no further batch is written and the cause of ctx is returned.
func StreamInsert[T any](ctx context.Context, dao *TableDao[T], recs <-chan *T, batchSize int, hints *Hints) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultLoadBatchSize
	}

	total := 0
	flush := func(batch []*T) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		counts, err := dao.BatchInsert(ctx, batch, hints)
		total += Sum(counts)
		return err
	}

	batch := make([]*T, 0, batchSize)
	for rec := range recs {
		batch = append(batch, rec)
		if len(batch) < batchSize {
			continue
		}
		if err := flush(batch); err != nil {
			return total, err
		}
		batch = batch[:0]
	}

	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return total, err
		}
	}
	return total, nil
}
