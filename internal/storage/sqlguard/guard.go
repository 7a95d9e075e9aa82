// Package sqlguard vets dataset queries before they reach the warehouse.
// Only a single read-only SELECT (or a UNION of SELECTs) is accepted.
package sqlguard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// Guard wraps the TiDB parser. The parser is not safe for concurrent use,
// so calls are serialised.
type Guard struct {
	mu sync.Mutex
	p  *parser.Parser
}

// New returns a Guard with a fresh parser.
func New() *Guard {
	return &Guard{p: parser.New()}
}

var defaultGuard = New()

// ValidateSelect checks query with a shared Guard.
func ValidateSelect(query string) error {
	return defaultGuard.ValidateSelect(query)
}

// ValidateSelect returns an InvalidInputError unless query parses to
// exactly one SELECT statement (or set operation over SELECTs) with no
// INTO or locking clause anywhere in it.
func (g *Guard) ValidateSelect(query string) error {
	if strings.TrimSpace(query) == "" {
		return rejected("query is empty")
	}

	g.mu.Lock()
	stmts, _, err := g.p.Parse(query, "", "")
	g.mu.Unlock()
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeQueryRejected, "query could not be parsed")
	}

	if len(stmts) != 1 {
		return rejected(fmt.Sprintf("expected exactly one statement, got %d", len(stmts)))
	}

	return checkReadOnly(stmts[0])
}

func checkReadOnly(stmt ast.StmtNode) error {
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
	default:
		return rejected(fmt.Sprintf("only SELECT statements are allowed, got %T", stmt))
	}

	v := &selectVisitor{}
	stmt.Accept(v)
	return v.err
}

// selectVisitor rejects INTO and locking clauses on every SELECT in the
// tree: set operation members, subqueries and CTE bodies included.
type selectVisitor struct {
	err error
}

func (v *selectVisitor) Enter(n ast.Node) (ast.Node, bool) {
	if s, ok := n.(*ast.SelectStmt); ok {
		v.err = checkSelect(s)
	}
	return n, v.err != nil
}

func (v *selectVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, v.err == nil
}

func checkSelect(s *ast.SelectStmt) error {
	if s.SelectIntoOpt != nil {
		return rejected("SELECT ... INTO is not allowed")
	}
	if s.LockInfo != nil && s.LockInfo.LockType != ast.SelectLockNone {
		return rejected("locking reads are not allowed")
	}
	return nil
}

func rejected(details string) error {
	return errors.NewValidationError(errors.CodeQueryRejected, "query rejected").WithDetails(details)
}
