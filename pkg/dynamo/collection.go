package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pay-theory/minq/internal/expr"
	"github.com/pay-theory/minq/pkg/core"
	"github.com/pay-theory/minq/pkg/naming"
)

const (
	// maxBatchWrite is the DynamoDB limit on requests per BatchWriteItem
	maxBatchWrite = 25

	maxUnprocessedRetries = 5
	unprocessedBackoff    = 50 * time.Millisecond
)

// Collection is a DynamoDB table viewed as a document collection
type Collection struct {
	db   *Database
	name string
}

// Name returns the table name
func (c *Collection) Name() string {
	return c.name
}

// Find returns a lazy cursor over matching items
func (c *Collection) Find(filter core.Document, opts core.Options, projection ...core.Document) core.Cursor {
	cur := &Cursor{
		coll:   c,
		filter: filter.Clone(),
		opts:   opts.Clone(),
	}
	if len(projection) > 0 && projection[0] != nil {
		cur.projection = projection[0].Clone()
	}
	return cur
}

// Insert writes each document with PutItem. Documents without _id get a generated one.
func (c *Collection) Insert(ctx context.Context, docs []core.Document, opts core.Options) ([]core.Document, error) {
	out := make([]core.Document, len(docs))
	for i, doc := range docs {
		stored := doc.Clone()
		if id, ok := stored.ID(); !ok || id == nil {
			stored[core.IDField] = uuid.NewString()
		}
		out[i] = stored
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.db.maxConcurrency)
	for _, doc := range out {
		g.Go(func() error {
			return c.put(gctx, doc, opts.Safe)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection) put(ctx context.Context, doc core.Document, safe bool) error {
	item, err := c.db.toItem(doc)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.name),
		Item:      item,
	}
	if safe {
		b := expr.NewBuilder()
		if err := b.AddConditionExpression(c.db.idAttribute, "NOT_EXISTS", nil); err != nil {
			return err
		}
		components := b.Build()
		input.ConditionExpression = aws.String(components.ConditionExpression)
		input.ExpressionAttributeNames = components.ExpressionAttributeNames
	}

	if err := c.db.wait(ctx); err != nil {
		return err
	}
	_, err = c.db.client.PutItem(ctx, input)
	return err
}

// Update modifies the first document matching filter. An upsert with no
// match creates a document from the filter's equality fields and the changes.
func (c *Collection) Update(ctx context.Context, filter, changes core.Document, opts core.Options) (core.UpdateResult, error) {
	if id, ok := pinnedID(filter); ok {
		return c.updateByID(ctx, id, filter.Without(core.IDField), changes, opts.Upsert)
	}

	id, found, err := c.firstID(ctx, filter)
	if err != nil {
		return core.UpdateResult{}, err
	}
	if found {
		return c.updateByID(ctx, id, filter, changes, false)
	}
	if !opts.Upsert {
		return core.UpdateResult{}, nil
	}
	return c.updateByID(ctx, uuid.NewString(), filter, changes, true)
}

func (c *Collection) updateByID(ctx context.Context, id any, cond, changes core.Document, upsert bool) (core.UpdateResult, error) {
	key, err := c.db.keyOf(id)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
	}

	b := expr.NewBuilder()
	stored := c.db.toStored(changes)
	if len(stored) > 0 {
		if err := b.CompileUpdate(stored, c.db.idAttribute); err != nil {
			return core.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
		}
	}

	storedCond := c.db.toStored(cond)
	if upsert {
		touched := updatedFields(stored)
		for field, v := range expr.EqualityFields(storedCond) {
			if touched[naming.SplitPath(field)[0]] || field == c.db.idAttribute {
				continue
			}
			if err := b.AddUpdateSetIfMissing(field, v); err != nil {
				return core.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
			}
		}
	}
	if !b.HasUpdate() {
		if upsert {
			return c.insertIfMissing(ctx, id, key, storedCond)
		}
		return core.UpdateResult{}, fmt.Errorf("update %s: update document is empty", c.name)
	}

	clause, err := b.CompileFilter(storedCond)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
	}
	if upsert {
		if clause != "" {
			missing, err := b.Condition(c.db.idAttribute, "NOT_EXISTS", nil)
			if err != nil {
				return core.UpdateResult{}, err
			}
			b.AddCondition(fmt.Sprintf("(%s OR (%s))", missing, clause))
		}
	} else {
		if err := b.AddConditionExpression(c.db.idAttribute, "EXISTS", nil); err != nil {
			return core.UpdateResult{}, err
		}
		b.AddCondition(clause)
	}

	components := b.Build()
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.name),
		Key:                       key,
		UpdateExpression:          aws.String(components.UpdateExpression),
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueAllOld,
	}
	if components.ConditionExpression != "" {
		input.ConditionExpression = aws.String(components.ConditionExpression)
	}

	if err := c.db.wait(ctx); err != nil {
		return core.UpdateResult{}, err
	}
	out, err := c.db.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !upsert && errors.As(err, &ccf) {
			return core.UpdateResult{}, nil
		}
		return core.UpdateResult{}, err
	}

	if len(out.Attributes) == 0 {
		return core.UpdateResult{UpsertedCount: 1, UpsertedID: id}, nil
	}
	return core.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

// insertIfMissing handles an upsert that changes nothing: the document is
// created from the key and the filter's equality fields unless it already exists.
func (c *Collection) insertIfMissing(ctx context.Context, id any, key map[string]types.AttributeValue, cond core.Document) (core.UpdateResult, error) {
	seed := make(map[string]any)
	for field, v := range expr.EqualityFields(cond) {
		if field == c.db.idAttribute {
			continue
		}
		setPath(seed, field, v)
	}
	item, err := expr.ConvertDocument(seed)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
	}
	item[c.db.idAttribute] = key[c.db.idAttribute]

	b := expr.NewBuilder()
	if err := b.AddConditionExpression(c.db.idAttribute, "NOT_EXISTS", nil); err != nil {
		return core.UpdateResult{}, err
	}
	components := b.Build()
	input := &dynamodb.PutItemInput{
		TableName:                aws.String(c.name),
		Item:                     item,
		ConditionExpression:      aws.String(components.ConditionExpression),
		ExpressionAttributeNames: components.ExpressionAttributeNames,
	}

	if err := c.db.wait(ctx); err != nil {
		return core.UpdateResult{}, err
	}
	if _, err := c.db.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return core.UpdateResult{MatchedCount: 1}, nil
		}
		return core.UpdateResult{}, err
	}
	return core.UpdateResult{UpsertedCount: 1, UpsertedID: id}, nil
}

// firstID scans for the identifier of the first matching item
func (c *Collection) firstID(ctx context.Context, filter core.Document) (any, bool, error) {
	var (
		id      any
		found   bool
		convErr error
	)
	cur := &Cursor{coll: c, filter: filter, mode: readKeys}
	err := cur.pages(ctx, func(p page) bool {
		if len(p.items) == 0 {
			return true
		}
		doc, err := c.db.fromItem(p.items[0])
		if err != nil {
			convErr = err
			return false
		}
		id, found = doc[core.IDField]
		return !found
	})
	if err == nil {
		err = convErr
	}
	return id, found, err
}

// Remove deletes every matching document and returns how many were deleted
func (c *Collection) Remove(ctx context.Context, filter core.Document, opts core.Options) (int64, error) {
	if id, ok := pinnedID(filter); ok {
		return c.removeByID(ctx, id, filter.Without(core.IDField))
	}

	var keys []map[string]types.AttributeValue
	cur := &Cursor{coll: c, filter: filter, mode: readKeys}
	err := cur.pages(ctx, func(p page) bool {
		for _, item := range p.items {
			if av, ok := item[c.db.idAttribute]; ok {
				keys = append(keys, map[string]types.AttributeValue{c.db.idAttribute: av})
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.db.maxConcurrency)
	for start := 0; start < len(keys); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(keys))
		chunk := keys[start:end]
		g.Go(func() error {
			return c.deleteBatch(gctx, chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (c *Collection) removeByID(ctx context.Context, id any, cond core.Document) (int64, error) {
	key, err := c.db.keyOf(id)
	if err != nil {
		return 0, fmt.Errorf("remove from %s: %w", c.name, err)
	}

	b := expr.NewBuilder()
	if err := b.AddConditionExpression(c.db.idAttribute, "EXISTS", nil); err != nil {
		return 0, err
	}
	clause, err := b.CompileFilter(c.db.toStored(cond))
	if err != nil {
		return 0, fmt.Errorf("remove from %s: %w", c.name, err)
	}
	b.AddCondition(clause)
	components := b.Build()

	input := &dynamodb.DeleteItemInput{
		TableName:                 aws.String(c.name),
		Key:                       key,
		ConditionExpression:       aws.String(components.ConditionExpression),
		ExpressionAttributeNames:  components.ExpressionAttributeNames,
		ExpressionAttributeValues: components.ExpressionAttributeValues,
	}

	if err := c.db.wait(ctx); err != nil {
		return 0, err
	}
	if _, err := c.db.client.DeleteItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, nil
		}
		return 0, err
	}
	return 1, nil
}

// deleteBatch deletes up to 25 keys, retrying unprocessed items
func (c *Collection) deleteBatch(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, len(keys))
	for i, key := range keys {
		requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}
	}

	pending := map[string][]types.WriteRequest{c.name: requests}
	backoff := unprocessedBackoff
	for attempt := 0; ; attempt++ {
		if err := c.db.wait(ctx); err != nil {
			return err
		}
		out, err := c.db.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[c.name]) == 0 {
			return nil
		}
		if attempt >= maxUnprocessedRetries {
			return fmt.Errorf("remove from %s: %d items left unprocessed", c.name, len(out.UnprocessedItems[c.name]))
		}

		c.db.logger.DebugContext(ctx, "retrying unprocessed deletes",
			"collection", c.name,
			"unprocessed", len(out.UnprocessedItems[c.name]),
			"attempt", attempt+1)

		pending = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// plan compiles a filter into a Query when it pins _id and a Scan otherwise
func (c *Collection) plan(filter, projection core.Document, sortKeys core.Sort, mode readMode) (readPlan, error) {
	b := expr.NewBuilder()
	stored := c.db.toStored(filter)

	plan := readPlan{}
	if id, ok := pinnedID(filter); ok {
		if err := b.AddKeyCondition(c.db.idAttribute, "=", id); err != nil {
			return readPlan{}, err
		}
		stored = stored.Without(c.db.idAttribute)
		plan.query = true
	}

	clause, err := b.CompileFilter(stored)
	if err != nil {
		return readPlan{}, fmt.Errorf("find in %s: %w", c.name, err)
	}
	b.AddFilterExpression(clause)

	switch mode {
	case readKeys:
		b.AddProjection(c.db.idAttribute)
	case readDocuments:
		if projection == nil {
			break
		}
		if p := parseProjection(projection); p.inclusive() {
			fields := append([]string{}, p.include...)
			for _, key := range sortKeys {
				fields = append(fields, key.Field)
			}
			b.AddProjection(c.projectionFields(fields)...)
		}
	}

	plan.components = b.Build()
	return plan, nil
}

// projectionFields maps fields to distinct top-level attributes, always including the key
func (c *Collection) projectionFields(fields []string) []string {
	seen := map[string]bool{c.db.idAttribute: true}
	out := []string{c.db.idAttribute}
	for _, field := range fields {
		top := naming.SplitPath(field)[0]
		if top == core.IDField {
			top = c.db.idAttribute
		}
		if seen[top] {
			continue
		}
		seen[top] = true
		out = append(out, top)
	}
	return out
}

// updatedFields returns the top-level fields an update document writes
func updatedFields(update core.Document) map[string]bool {
	touched := make(map[string]bool)
	if !expr.IsOperatorUpdate(update) {
		for field := range update {
			touched[naming.SplitPath(field)[0]] = true
		}
		return touched
	}
	for _, fields := range update {
		if m, ok := asMap(fields); ok {
			for field := range m {
				touched[naming.SplitPath(field)[0]] = true
			}
		}
	}
	return touched
}
