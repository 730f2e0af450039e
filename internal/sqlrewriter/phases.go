package sqlrewriter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rvbbit/rvbbit/internal/model"
)

// stripDirectives peels a leading "BACKGROUND" and/or "ANALYZE '...'"
// prefix off the statement, recording them onto plan rather than leaving
// them for the underlying engine to choke on (§4.11 phase 1).
func stripDirectives(toks []Token, plan *Plan) []Token {
	i := skipInsig(toks, 0)
	if i < len(toks) && wordEq(toks[i], "BACKGROUND") {
		plan.Background = true
		toks = append(append([]Token{}, toks[:i]...), toks[i+1:]...)
		i = skipInsig(toks, i)
	}
	if i < len(toks) && wordEq(toks[i], "ANALYZE") {
		j := skipInsig(toks, i+1)
		if j < len(toks) && toks[j].Kind == TokenString {
			plan.Analyze = toks[j].StringValue()
			toks = append(append([]Token{}, toks[:i]...), toks[j+1:]...)
		}
	}
	return toks
}

var vectorFuncs = map[string]string{
	"VECTOR_SEARCH": "vector_search",
	"HYBRID_SEARCH": "hybrid_search",
}

// rewriteVectorSearch implements §4.11 phase 2: VECTOR_SEARCH/HYBRID_SEARCH
// calls become a read_json_auto-wrapped UDF call with an auto-added
// metadata.column_name predicate.
func rewriteVectorSearch(toks []Token) ([]Token, error) {
	for {
		nameIdx, openIdx, closeIdx, udf, found := findVectorCall(toks)
		if !found {
			break
		}
		args := splitTopLevelArgs(toks[openIdx+1 : closeIdx])
		if len(args) < 2 {
			return nil, model.NewParseError("vector_search", "expected at least (query, table.column) arguments")
		}
		argTexts := make([]string, len(args))
		for i, a := range args {
			argTexts[i] = strings.TrimSpace(render(a))
		}
		col := strings.Trim(argTexts[1], "'\"")
		colName := col
		if idx := strings.LastIndex(col, "."); idx >= 0 {
			colName = col[idx+1:]
		}
		replacement := fmt.Sprintf(
			"(SELECT * FROM read_json_auto(%s_json_%d(%s)) WHERE metadata.column_name = '%s')",
			udf, len(args), strings.Join(argTexts, ", "), colName,
		)
		toks = replaceSpan(toks, nameIdx, closeIdx, replacement)
	}
	return toks, nil
}

func findVectorCall(toks []Token) (nameIdx, openIdx, closeIdx int, udf string, found bool) {
	for i, t := range toks {
		if t.Kind != TokenWord {
			continue
		}
		u, ok := vectorFuncs[strings.ToUpper(t.Text)]
		if !ok {
			continue
		}
		j := skipInsig(toks, i+1)
		if j >= len(toks) || toks[j].Text != "(" {
			continue
		}
		close, err := findMatchingParen(toks, j)
		if err != nil {
			continue
		}
		return i, j, close, u, true
	}
	return 0, 0, 0, "", false
}

// rewriteEmbedBlock implements §4.11 phase 3: "RVBBIT EMBED table.column
// USING (...) [WITH (...)]" becomes an embed_batch(...) call.
func rewriteEmbedBlock(toks []Token) ([]Token, error) {
	i := skipInsig(toks, 0)
	if i >= len(toks) || !wordEq(toks[i], "RVBBIT") {
		return toks, nil
	}
	j := skipInsig(toks, i+1)
	if j >= len(toks) || !wordEq(toks[j], "EMBED") {
		return toks, nil
	}

	k := skipInsig(toks, j+1)
	tcStart := k
	for k < len(toks) && (toks[k].Kind == TokenWord || (toks[k].Kind == TokenPunct && toks[k].Text == ".")) {
		k++
	}
	if k == tcStart {
		return nil, model.NewParseError("rvbbit_embed", "expected table.column")
	}
	tableCol := render(toks[tcStart:k])

	k = skipInsig(toks, k)
	if k >= len(toks) || !wordEq(toks[k], "USING") {
		return nil, model.NewParseError("rvbbit_embed", "expected USING clause")
	}
	k = skipInsig(toks, k+1)
	if k >= len(toks) || toks[k].Text != "(" {
		return nil, model.NewParseError("rvbbit_embed", "expected ( after USING")
	}
	closeUsing, err := findMatchingParen(toks, k)
	if err != nil {
		return nil, err
	}
	selectText := strings.TrimSpace(render(toks[k+1 : closeUsing]))

	end := closeUsing
	optsJSON := "{}"
	w := skipInsig(toks, closeUsing+1)
	if w < len(toks) && wordEq(toks[w], "WITH") {
		w = skipInsig(toks, w+1)
		if w < len(toks) && toks[w].Text == "(" {
			closeWith, werr := findMatchingParen(toks, w)
			if werr != nil {
				return nil, werr
			}
			optsJSON = optsToJSON(splitTopLevelArgs(toks[w+1 : closeWith]))
			end = closeWith
		}
	}

	parts := strings.SplitN(tableCol, ".", 2)
	table, column := tableCol, ""
	if len(parts) == 2 {
		table, column = parts[0], parts[1]
	}

	replacement := fmt.Sprintf(
		"SELECT embed_batch('%s', '%s', (SELECT json_group_array(json_object('id', id, 'text', text, 'metadata', metadata)) FROM (%s)), '%s')",
		table, column, selectText, optsJSON,
	)
	return replaceSpan(toks, i, end, replacement), nil
}

func optsToJSON(opts [][]Token) string {
	if len(opts) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{")
	for idx, opt := range opts {
		opt = trimInsig(opt)
		eq := indexOfPunct(opt, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(render(opt[:eq]))
		val := strings.Trim(strings.TrimSpace(render(opt[eq+1:])), "'\"")
		if idx > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "\"%s\":\"%s\"", key, val)
	}
	sb.WriteString("}")
	return sb.String()
}

// extractMapRun implements §4.11 phase 4. If the statement is an
// "RVBBIT MAP"/"RVBBIT RUN" statement, it always returns a populated
// MapPlan. The returned tokens are either a rewritten scalar/table UDF
// call (serial MAP/RUN), or nil when Parallelism > 1, signaling that
// udfruntime's MAP PARALLEL interception must run this instead of the
// engine executing any rewritten SQL (§4.12.2).
func extractMapRun(toks []Token) ([]Token, *MapPlan, error) {
	i := skipInsig(toks, 0)
	if i >= len(toks) || !wordEq(toks[i], "RVBBIT") {
		return toks, nil, nil
	}
	j := skipInsig(toks, i+1)
	if j >= len(toks) || !(wordEq(toks[j], "MAP") || wordEq(toks[j], "RUN")) {
		return toks, nil, nil
	}
	verb := strings.ToUpper(toks[j].Text)
	k := skipInsig(toks, j+1)

	plan := &MapPlan{Verb: verb, Parallelism: 1, Options: map[string]string{}}

	if k < len(toks) && wordEq(toks[k], "PARALLEL") {
		k = skipInsig(toks, k+1)
		if k >= len(toks) || toks[k].Kind != TokenNumber {
			return nil, nil, model.NewParseError("rvbbit_map", "expected integer after PARALLEL")
		}
		n, _ := strconv.Atoi(toks[k].Text)
		plan.Parallelism = n
		k = skipInsig(toks, k+1)
	}

	if k < len(toks) && wordEq(toks[k], "DISTINCT") {
		plan.Distinct = true
		k = skipInsig(toks, k+1)
	}

	if k >= len(toks) || toks[k].Kind != TokenString {
		return nil, nil, model.NewParseError("rvbbit_map", "expected cascade path string literal")
	}
	plan.CascadePath = toks[k].StringValue()
	k = skipInsig(toks, k+1)

	if k < len(toks) && wordEq(toks[k], "AS") {
		k = skipInsig(toks, k+1)
		if k < len(toks) && toks[k].Text == "(" {
			closeDecl, err := findMatchingParen(toks, k)
			if err != nil {
				return nil, nil, err
			}
			for _, c := range splitTopLevelArgs(toks[k+1 : closeDecl]) {
				c = trimInsig(c)
				if len(c) < 1 {
					continue
				}
				plan.OutputSchema = append(plan.OutputSchema, ColumnDecl{
					Name: c[0].Text,
					Type: strings.TrimSpace(render(c[1:])),
				})
			}
			k = skipInsig(toks, closeDecl+1)
		} else if k < len(toks) && toks[k].Kind == TokenWord {
			plan.Alias = toks[k].Text
			k = skipInsig(toks, k+1)
		}
	}

	if k >= len(toks) || !wordEq(toks[k], "USING") {
		return nil, nil, model.NewParseError("rvbbit_map", "expected USING clause")
	}
	k = skipInsig(toks, k+1)
	if k >= len(toks) || toks[k].Text != "(" {
		return nil, nil, model.NewParseError("rvbbit_map", "expected ( after USING")
	}
	closeUsing, err := findMatchingParen(toks, k)
	if err != nil {
		return nil, nil, err
	}
	inputToks := append([]Token{}, toks[k+1:closeUsing]...)
	k = skipInsig(toks, closeUsing+1)

	if k < len(toks) && wordEq(toks[k], "WITH") {
		k = skipInsig(toks, k+1)
		if k < len(toks) && toks[k].Text == "(" {
			closeWith, werr := findMatchingParen(toks, k)
			if werr != nil {
				return nil, nil, werr
			}
			for _, opt := range splitTopLevelArgs(toks[k+1 : closeWith]) {
				opt = trimInsig(opt)
				eq := indexOfPunct(opt, "=")
				if eq <= 0 {
					continue
				}
				key := strings.TrimSpace(render(opt[:eq]))
				val := strings.Trim(strings.TrimSpace(render(opt[eq+1:])), "'\"")
				plan.Options[key] = val
			}
		}
	}

	if !containsWord(inputToks, "LIMIT") {
		inputToks = append(inputToks, Token{Kind: TokenRaw, Text: " LIMIT 1000"})
	}
	plan.InputQuery = strings.TrimSpace(render(inputToks))

	if plan.Parallelism > 1 {
		return nil, plan, nil
	}

	col := "result"
	if plan.Alias != "" {
		col = plan.Alias
	}
	udfName := "rvbbit_run"
	out, lerr := Lex(fmt.Sprintf("SELECT *, %s('%s', to_json(t)) AS %s FROM (%s) AS t", udfName, plan.CascadePath, col, plan.InputQuery))
	if lerr != nil {
		return nil, nil, lerr
	}
	return out, plan, nil
}

var defaultDimensionFuncs = map[string]bool{
	"TOPICS": true, "THEMES": true, "CATEGORIES": true, "CLUSTERS": true,
}

// rewriteDimensionFunctions implements §4.11 phase 5. A token-level
// rewriter has no view of the query's source tables, so — unlike the
// spec's "classify once via a joined CTE" description — this rewrites
// directly to a scalar bucket UDF call; rvbbit_dimension_bucket is
// expected to memoize per (func, column, value) to recover the same
// "discovered once" behavior without a join.
func rewriteDimensionFunctions(toks []Token, funcs map[string]bool) ([]Token, error) {
	gIdx := -1
	for i := 0; i+1 < len(toks); i++ {
		if wordEq(toks[i], "GROUP") {
			j := skipInsig(toks, i+1)
			if j < len(toks) && wordEq(toks[j], "BY") {
				gIdx = j
				break
			}
		}
	}
	if gIdx < 0 {
		return toks, nil
	}
	k := skipInsig(toks, gIdx+1)
	if k >= len(toks) || toks[k].Kind != TokenWord || !funcs[strings.ToUpper(toks[k].Text)] {
		return toks, nil
	}
	fn := strings.ToLower(toks[k].Text)

	openIdx := skipInsig(toks, k+1)
	if openIdx >= len(toks) || toks[openIdx].Text != "(" {
		return toks, nil
	}
	closeIdx, err := findMatchingParen(toks, openIdx)
	if err != nil {
		return nil, err
	}
	args := splitTopLevelArgs(toks[openIdx+1 : closeIdx])
	if len(args) == 0 {
		return nil, model.NewParseError("dimension_function", fn+" requires a column argument")
	}
	argTexts := make([]string, len(args))
	for i, a := range args {
		argTexts[i] = strings.TrimSpace(render(a))
	}

	replacement := fmt.Sprintf("rvbbit_dimension_bucket('%s', %s)", fn, strings.Join(argTexts, ", "))
	return replaceSpan(toks, k, closeIdx, replacement), nil
}

var infixOperatorUDFs = map[string]string{
	"MEANS":       "rvbbit_means",
	"ABOUT":       "rvbbit_about",
	"IMPLIES":     "rvbbit_implies",
	"CONTRADICTS": "rvbbit_contradicts",
	"ALIGNS":      "rvbbit_aligns",
	"EXTRACTS":    "rvbbit_extracts",
}

// rewriteInfixOperators implements §4.11 phase 6: two-operand semantic
// operators and "ORDER BY col RELEVANCE TO 'q'" become UDF calls in
// canonical (column, literal) argument order.
func rewriteInfixOperators(toks []Token) ([]Token, error) {
	var err error
	toks, err = rewriteRelevanceTo(toks)
	if err != nil {
		return nil, err
	}
	return rewriteSemanticOperators(toks)
}

func rewriteRelevanceTo(toks []Token) ([]Token, error) {
	for {
		idx := -1
		for i := 0; i < len(toks); i++ {
			if wordEq(toks[i], "RELEVANCE") {
				j := skipInsig(toks, i+1)
				if j < len(toks) && wordEq(toks[j], "TO") {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return toks, nil
		}
		toIdx := skipInsig(toks, idx+1)
		strIdx := skipInsig(toks, toIdx+1)
		if strIdx >= len(toks) || toks[strIdx].Kind != TokenString {
			return nil, model.NewParseError("relevance_to", "expected string literal after RELEVANCE TO")
		}
		leftStart, leftEnd := leftOperandSpan(toks, idx)
		col := strings.TrimSpace(render(toks[leftStart : leftEnd+1]))
		replacement := fmt.Sprintf("rvbbit_relevance(%s, %s) DESC", col, toks[strIdx].Text)
		toks = replaceSpan(toks, leftStart, strIdx, replacement)
	}
}

// rewriteSemanticOperators matches "<col> <OP> 'lit'" and its negated form
// "<col> NOT <OP> 'lit'". NOT sits between the column and the operator, so
// the column scan must stop at NOT rather than absorb it as part of the
// operand.
func rewriteSemanticOperators(toks []Token) ([]Token, error) {
	for {
		opIdx, udf, found := findSemanticOperator(toks)
		if !found {
			break
		}
		strIdx := skipInsig(toks, opIdx+1)
		if strIdx >= len(toks) || toks[strIdx].Kind != TokenString {
			return nil, model.NewParseError("semantic_operator", "expected string literal after operator")
		}

		negated := false
		b := opIdx - 1
		for b >= 0 && !isSignificant(toks[b]) {
			b--
		}
		operandEnd := b
		if b >= 0 && wordEq(toks[b], "NOT") {
			negated = true
			operandEnd = b - 1
			for operandEnd >= 0 && !isSignificant(toks[operandEnd]) {
				operandEnd--
			}
		}

		operandStart := operandEnd
		for operandStart >= 0 && (toks[operandStart].Kind == TokenWord || (toks[operandStart].Kind == TokenPunct && toks[operandStart].Text == ".")) {
			operandStart--
		}
		operandStart++

		col := strings.TrimSpace(render(toks[operandStart : operandEnd+1]))
		call := fmt.Sprintf("%s(%s, %s)", udf, col, toks[strIdx].Text)
		if negated {
			call = "NOT " + call
		}
		toks = replaceSpan(toks, operandStart, strIdx, call)
	}
	return toks, nil
}

func findSemanticOperator(toks []Token) (idx int, udf string, found bool) {
	for i, t := range toks {
		if t.Kind != TokenWord {
			continue
		}
		u, ok := infixOperatorUDFs[strings.ToUpper(t.Text)]
		if !ok {
			continue
		}
		j := skipInsig(toks, i+1)
		if j >= len(toks) || toks[j].Kind != TokenString {
			continue
		}
		return i, u, true
	}
	return 0, "", false
}

// leftOperandSpan walks backward from opIdx over a contiguous
// word/dot identifier path (e.g. "table.column") immediately preceding it.
func leftOperandSpan(toks []Token, opIdx int) (start, end int) {
	i := opIdx - 1
	for i >= 0 && !isSignificant(toks[i]) {
		i--
	}
	end = i
	for i >= 0 && (toks[i].Kind == TokenWord || (toks[i].Kind == TokenPunct && toks[i].Text == ".")) {
		i--
	}
	start = i + 1
	if start > end {
		start = end
	}
	return start, end
}

// rewriteAggregates implements §4.11 phase 7: cascade-declared aggregate
// aliases are matched by name and rewritten to their backing UDF call.
func rewriteAggregates(toks []Token, aggregates map[string]AggregateOperator) ([]Token, error) {
	if len(aggregates) == 0 {
		return toks, nil
	}
	for {
		nameIdx, openIdx, closeIdx, agg, found := findAggregateCall(toks, aggregates)
		if !found {
			break
		}
		args := splitTopLevelArgs(toks[openIdx+1 : closeIdx])
		if agg.Arity > 0 && len(args) != agg.Arity {
			return nil, model.NewValidationError(agg.Alias, fmt.Sprintf("expected %d argument(s), got %d", agg.Arity, len(args)))
		}
		argText := strings.TrimSpace(render(toks[openIdx+1 : closeIdx]))
		replacement := fmt.Sprintf("%s(%s)", agg.UDFName, argText)
		toks = replaceSpan(toks, nameIdx, closeIdx, replacement)
	}
	return toks, nil
}

func findAggregateCall(toks []Token, aggregates map[string]AggregateOperator) (nameIdx, openIdx, closeIdx int, agg AggregateOperator, found bool) {
	for i, t := range toks {
		if t.Kind != TokenWord {
			continue
		}
		a, ok := aggregates[strings.ToUpper(t.Text)]
		if !ok {
			continue
		}
		j := skipInsig(toks, i+1)
		if j >= len(toks) || toks[j].Text != "(" {
			continue
		}
		close, err := findMatchingParen(toks, j)
		if err != nil {
			continue
		}
		return i, j, close, a, true
	}
	return 0, 0, 0, AggregateOperator{}, false
}
