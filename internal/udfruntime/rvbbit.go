package udfruntime

import (
	"context"
	"encoding/json"
)

const errorResult = "ERROR"

// rvbbit implements the rvbbit(instructions, value) UDF (§4.12.1): runs a
// synthesized one-cell cascade against value under the given criterion
// instructions, caching by (instructions, normalized value).
func (rt *Runtime) rvbbit(ctx context.Context, args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return errorResult, nil
	}
	instructions, _ := args[0].(string)
	value := args[1]

	key := cacheKey("rvbbit", instructions, normalizeInput(value), rt.modelName)
	if cached, ok := rt.cacheGet(key); ok {
		return cached, nil
	}

	res, err := rt.invoker.RunInstructions(ctx, instructions, value, "")
	if err != nil {
		return errorResult, nil
	}
	rt.cacheAdd(key, res.Content)
	return res.Content, nil
}

// rvbbitRun implements the rvbbit_run(cascade_path, value) UDF (§4.12.1).
// cascade_path resolves as a cascade_id against the same catalog
// run_cascade/cascade-as-tool/ward-validator-cascade re-entry already
// uses, per the for_each_row open-question decision generalized to every
// way a cascade can invoke another cascade. value is the row's to_json(t)
// payload and is unmarshaled into the sub-cascade's inputs map.
func (rt *Runtime) rvbbitRun(ctx context.Context, args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return errorResult, nil
	}
	cascadeID, _ := args[0].(string)
	rawInput, _ := args[1].(string)

	key := cacheKey("rvbbit_run", cascadeID, rawInput, rt.modelName)
	if cached, ok := rt.cacheGet(key); ok {
		return cached, nil
	}

	var inputs map[string]interface{}
	if err := json.Unmarshal([]byte(rawInput), &inputs); err != nil {
		return errorResult, nil
	}

	res, err := rt.invoker.RunAsTool(ctx, cascadeID, inputs, "")
	if err != nil {
		return errorResult, nil
	}
	rt.cacheAdd(key, res.Content)
	return res.Content, nil
}

// dimensionBucket implements rvbbit_dimension_bucket(func_name, value), the
// scalar-UDF simplification of the GROUP BY topics(col)-style dimension
// functions (§4.11 phase 5, see sqlrewriter's DESIGN.md entry): classifies
// value into one of func_name's discovered buckets, memoizing per (func,
// value) in the same result cache rvbbit/rvbbit_run use so repeated values
// within a query (and across queries, until eviction) classify once.
func (rt *Runtime) dimensionBucket(ctx context.Context, args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return errorResult, nil
	}
	funcName, _ := args[0].(string)
	value := normalizeInput(args[1])

	key := cacheKey("rvbbit_dimension_bucket", funcName, value, rt.modelName)
	if cached, ok := rt.cacheGet(key); ok {
		return cached, nil
	}

	instructions := "Classify the following value along the dimension \"" + funcName + "\". Respond with a single short bucket label only."
	res, err := rt.invoker.RunInstructions(ctx, instructions, args[1], "")
	if err != nil {
		return errorResult, nil
	}
	rt.cacheAdd(key, res.Content)
	return res.Content, nil
}
