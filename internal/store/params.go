package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"github.com/abhisek/adaptest/internal/irt"
)

// FormatVersion is written with every checkpoint. Checkpoints with a
// different major version are refused on load.
const FormatVersion = "v1.0.0"

var (
	ErrNotFound           = errors.New("checkpoint not found")
	ErrIncompatibleFormat = errors.New("incompatible checkpoint format")
	ErrMissingBlock       = errors.New("block missing from params")
	ErrRaggedBlock        = errors.New("block rows differ in length")
	ErrCorruptBlock       = errors.New("stored block does not match its shape")
)

// Block groups for partial checkpoints.
var (
	ItemBlocks    = []irt.Block{irt.BlockDiscrimination, irt.BlockDifficulty}
	StudentBlocks = []irt.Block{irt.BlockAbility}
)

// Checkpoint describes one saved set of parameter blocks.
type Checkpoint struct {
	ID            string
	Seq           int64
	Name          string
	FormatVersion string
	Dim           int
	Students      int
	Items         int
	Blocks        []irt.Block
	CreatedAt     time.Time
}

// ParamRepo persists model parameters under a name. Every Save appends a
// new checkpoint; Load merges, per block, the newest checkpoint of that
// name holding the block. Saving only item blocks and later only student
// blocks therefore loads as one complete parameter set.
type ParamRepo interface {
	// Save writes the given blocks of params, or every block present when
	// none are named.
	Save(ctx context.Context, name string, params irt.Params, blocks ...irt.Block) (*Checkpoint, error)

	// Load returns the merged blocks and the newest checkpoint of name.
	Load(ctx context.Context, name string) (irt.Params, *Checkpoint, error)

	// List returns all checkpoints, newest first.
	List(ctx context.Context) ([]Checkpoint, error)

	// Prune deletes all but the keep most recent checkpoints of name.
	// Blocks held only by pruned checkpoints are lost.
	Prune(ctx context.Context, name string, keep int) (int64, error)
}

// paramRepo implements ParamRepo with plain SQL.
type paramRepo struct {
	db *sql.DB
}

func (r *paramRepo) Save(ctx context.Context, name string, params irt.Params, blocks ...irt.Block) (*Checkpoint, error) {
	if len(blocks) == 0 {
		for _, b := range irt.Blocks {
			if _, ok := params[b]; ok {
				blocks = append(blocks, b)
			}
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: nothing to save", ErrMissingBlock)
	}

	cp := &Checkpoint{
		ID:            uuid.NewString(),
		Name:          name,
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
	}

	type encoded struct {
		block      irt.Block
		rows, cols int
		data       []byte
	}
	var enc []encoded
	for _, b := range blocks {
		rows, ok := params[b]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingBlock, b)
		}
		cols, err := width(rows)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b, err)
		}
		if cols > 0 {
			cp.Dim = cols
		}
		if b == irt.BlockAbility {
			cp.Students = len(rows)
		} else {
			cp.Items = len(rows)
		}
		enc = append(enc, encoded{block: b, rows: len(rows), cols: cols, data: encodeRows(rows)})
		cp.Blocks = append(cp.Blocks, b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, name, format_version, dim, students, items, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Name, cp.FormatVersion, cp.Dim, cp.Students, cp.Items, cp.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}
	if cp.Seq, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("checkpoint seq: %w", err)
	}

	for _, e := range enc {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO param_blocks (checkpoint_id, block, rows, cols, data) VALUES (?, ?, ?, ?, ?)`,
			cp.ID, string(e.block), e.rows, e.cols, e.data); err != nil {
			return nil, fmt.Errorf("insert block %s: %w", e.block, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save: %w", err)
	}
	return cp, nil
}

func (r *paramRepo) Load(ctx context.Context, name string) (irt.Params, *Checkpoint, error) {
	cp, err := r.latest(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	params := make(irt.Params)
	for _, b := range irt.Blocks {
		var (
			version    string
			rows, cols int
			data       []byte
		)
		err := r.db.QueryRowContext(ctx,
			`SELECT c.format_version, b.rows, b.cols, b.data
			 FROM param_blocks b JOIN checkpoints c ON c.id = b.checkpoint_id
			 WHERE c.name = ? AND b.block = ?
			 ORDER BY c.seq DESC LIMIT 1`,
			name, string(b)).Scan(&version, &rows, &cols, &data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("query block %s: %w", b, err)
		}
		if err := checkFormat(version); err != nil {
			return nil, nil, fmt.Errorf("block %s: %w", b, err)
		}
		decoded, err := decodeRows(data, rows, cols)
		if err != nil {
			return nil, nil, fmt.Errorf("block %s: %w", b, err)
		}
		params[b] = decoded
	}
	return params, cp, nil
}

func (r *paramRepo) latest(ctx context.Context, name string) (*Checkpoint, error) {
	var (
		cp      Checkpoint
		created int64
		blocks  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT c.seq, c.id, c.name, c.format_version, c.dim, c.students, c.items, c.created_at,
		        (SELECT GROUP_CONCAT(block) FROM param_blocks WHERE checkpoint_id = c.id)
		 FROM checkpoints c WHERE c.name = ?
		 ORDER BY c.seq DESC LIMIT 1`, name).
		Scan(&cp.Seq, &cp.ID, &cp.Name, &cp.FormatVersion, &cp.Dim, &cp.Students, &cp.Items, &created, &blocks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	if err := checkFormat(cp.FormatVersion); err != nil {
		return nil, err
	}
	cp.CreatedAt = time.Unix(0, created).UTC()
	cp.Blocks = parseBlocks(blocks.String)
	return &cp, nil
}

func (r *paramRepo) List(ctx context.Context) ([]Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.seq, c.id, c.name, c.format_version, c.dim, c.students, c.items, c.created_at,
		        (SELECT GROUP_CONCAT(block) FROM param_blocks WHERE checkpoint_id = c.id)
		 FROM checkpoints c ORDER BY c.seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			cp      Checkpoint
			created int64
			blocks  sql.NullString
		)
		if err := rows.Scan(&cp.Seq, &cp.ID, &cp.Name, &cp.FormatVersion, &cp.Dim, &cp.Students, &cp.Items, &created, &blocks); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.CreatedAt = time.Unix(0, created).UTC()
		cp.Blocks = parseBlocks(blocks.String)
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (r *paramRepo) Prune(ctx context.Context, name string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	// Older checkpoints than the keep-th newest.
	const victims = `SELECT id FROM checkpoints WHERE name = ? AND seq NOT IN
		(SELECT seq FROM checkpoints WHERE name = ? ORDER BY seq DESC LIMIT ?)`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM param_blocks WHERE checkpoint_id IN (`+victims+`)`, name, name, keep); err != nil {
		return 0, fmt.Errorf("prune blocks: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id IN (`+victims+`)`, name, name, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}

func checkFormat(version string) error {
	if !semver.IsValid(version) || semver.Major(version) != semver.Major(FormatVersion) {
		return fmt.Errorf("%w: %s (supported %s)", ErrIncompatibleFormat, version, semver.Major(FormatVersion))
	}
	return nil
}

// parseBlocks splits a GROUP_CONCAT result and orders it like irt.Blocks.
func parseBlocks(s string) []irt.Block {
	if s == "" {
		return nil
	}
	var out []irt.Block
	for _, part := range strings.Split(s, ",") {
		out = append(out, irt.Block(part))
	}
	slices.SortFunc(out, func(a, b irt.Block) int {
		return slices.Index(irt.Blocks, a) - slices.Index(irt.Blocks, b)
	})
	return out
}

func width(rows [][]float64) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := len(rows[0])
	for i, row := range rows {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d, want %d", ErrRaggedBlock, i, len(row), cols)
		}
	}
	return cols, nil
}

// encodeRows packs rows as little-endian float64s, row-major.
func encodeRows(rows [][]float64) []byte {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	buf := make([]byte, 0, len(rows)*cols*8)
	for _, row := range rows {
		for _, f := range row {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
	}
	return buf
}

func decodeRows(b []byte, rows, cols int) ([][]float64, error) {
	if rows < 0 || cols < 0 || len(b) != rows*cols*8 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrCorruptBlock, len(b), rows, cols)
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			off := (i*cols + j) * 8
			out[i][j] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		}
	}
	return out, nil
}
