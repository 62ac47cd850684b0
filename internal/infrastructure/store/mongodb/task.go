package mongodb

import (
	"context"
	"errors"
	"log"
	"time"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoTaskRepo struct {
	col *mongo.Collection
}

func NewMongoTaskRepo(db *mongo.Database) repository.TaskRepository {
	col := db.Collection("tasks")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})

	return &MongoTaskRepo{
		col: col,
	}
}

func (r *MongoTaskRepo) Upsert(ctx context.Context, in entity.TaskUpsert) (*entity.Task, error) {
	metrics.IncDBOp("upsert")

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	task, err := r.findOneAndUpdate(ctx, in.TaskID, taskUpsertUpdate(in, time.Now().UTC()), opts)
	if err != nil {
		metrics.IncError("mongo_task_repo", "upsert_error")
		return nil, entity.MarkPersistence(err, "upsert task")
	}
	return task, nil
}

func (r *MongoTaskRepo) GetByTaskID(ctx context.Context, taskID string) (*entity.Task, error) {
	metrics.IncDBOp("get")

	var task entity.Task
	err := r.col.FindOne(ctx, bson.M{"taskId": taskID}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_task_repo", "get_error")
		return nil, entity.MarkPersistence(err, "get task")
	}
	return &task, nil
}

func (r *MongoTaskRepo) List(ctx context.Context) ([]*entity.Task, error) {
	metrics.IncDBOp("list")

	tasks, err := r.findTasks(ctx, bson.D{})
	if err != nil {
		metrics.IncError("mongo_task_repo", "list_error")
		return nil, entity.MarkPersistence(err, "list tasks")
	}
	return tasks, nil
}

func (r *MongoTaskRepo) ListByStatus(ctx context.Context, statuses ...entity.TaskStatus) ([]*entity.Task, error) {
	metrics.IncDBOp("list")

	tasks, err := r.findTasks(ctx, bson.M{"status": bson.M{"$in": statuses}})
	if err != nil {
		metrics.IncError("mongo_task_repo", "list_by_status_error")
		return nil, entity.MarkPersistence(err, "list tasks by status")
	}
	return tasks, nil
}

func (r *MongoTaskRepo) SetStatus(ctx context.Context, taskID string, status entity.TaskStatus) (*entity.Task, error) {
	metrics.IncDBOp("put")

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"status":    status,
		"lastRun":   now,
		"updatedAt": now,
	}}
	task, err := r.findOneAndUpdate(ctx, taskID, update, afterUpdate())
	if err != nil {
		metrics.IncError("mongo_task_repo", "set_status_error")
		return nil, entity.MarkPersistence(err, "set task status")
	}
	return task, nil
}

func (r *MongoTaskRepo) AdvanceOffset(ctx context.Context, taskID string, offset int64) (*entity.Task, error) {
	metrics.IncDBOp("put")

	task, err := r.findOneAndUpdate(ctx, taskID, advanceOffsetUpdate(offset, time.Now().UTC()), afterUpdate())
	if err != nil {
		metrics.IncError("mongo_task_repo", "advance_offset_error")
		return nil, entity.MarkPersistence(err, "advance task offset")
	}
	return task, nil
}

func (r *MongoTaskRepo) ResetOffset(ctx context.Context, taskID string) (*entity.Task, error) {
	metrics.IncDBOp("put")

	update := bson.M{"$set": bson.M{
		"lastOffset": int64(0),
		"status":     entity.TaskStatusIdle,
		"updatedAt":  time.Now().UTC(),
	}}
	task, err := r.findOneAndUpdate(ctx, taskID, update, afterUpdate())
	if err != nil {
		metrics.IncError("mongo_task_repo", "reset_offset_error")
		return nil, entity.MarkPersistence(err, "reset task offset")
	}
	return task, nil
}

// taskUpsertUpdate overwrites name, status and lastRun; lastOffset is only
// touched on insert unless the caller supplies one.
func taskUpsertUpdate(in entity.TaskUpsert, now time.Time) bson.M {
	status := in.Status
	if status == "" {
		status = entity.TaskStatusIdle
	}
	set := bson.M{
		"name":      in.Name,
		"status":    status,
		"lastRun":   now,
		"updatedAt": now,
	}
	setOnInsert := bson.M{"createdAt": now}
	if in.LastOffset != nil {
		off := *in.LastOffset
		if off < 0 {
			off = 0
		}
		set["lastOffset"] = off
	} else {
		setOnInsert["lastOffset"] = int64(0)
	}
	return bson.M{"$set": set, "$setOnInsert": setOnInsert}
}

// advanceOffsetUpdate uses $max so the cursor never moves backwards.
func advanceOffsetUpdate(offset int64, now time.Time) bson.M {
	if offset < 0 {
		offset = 0
	}
	return bson.M{
		"$max": bson.M{"lastOffset": offset},
		"$set": bson.M{"lastRun": now, "updatedAt": now},
	}
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func (r *MongoTaskRepo) findOneAndUpdate(ctx context.Context, taskID string, update bson.M, opts *options.FindOneAndUpdateOptions) (*entity.Task, error) {
	var task entity.Task
	err := r.col.FindOneAndUpdate(ctx, bson.M{"taskId": taskID}, update, opts).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *MongoTaskRepo) findTasks(ctx context.Context, filter interface{}) ([]*entity.Task, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	tasks := make([]*entity.Task, 0)
	for cur.Next(ctx) {
		var t entity.Task
		if err := cur.Decode(&t); err != nil {
			metrics.IncError("mongo_task_repo", "decode_error")
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	return tasks, cur.Err()
}
