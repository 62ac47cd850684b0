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

type MongoJobRepo struct {
	jobsCol *mongo.Collection
}

func NewMongoJobRepo(db *mongo.Database) repository.JobRepository {
	col := db.Collection("jobs")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sourceTaskId", Value: 1}, {Key: "jobTitle", Value: 1}}},
		{Keys: bson.D{{Key: "sourceTaskId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "datePosted", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})

	return &MongoJobRepo{
		jobsCol: col,
	}
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

func (r *MongoJobRepo) Create(ctx context.Context, job *entity.Job) error {
	metrics.IncDBOp("insert")

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if _, err := r.jobsCol.InsertOne(ctx, job); err != nil {
		metrics.IncError("mongo_job_repo", "create_error")
		return entity.MarkPersistence(err, "insert job")
	}
	metrics.IncJobsCreated()
	return nil
}

func (r *MongoJobRepo) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	metrics.IncDBOp("get")

	var job entity.Job
	err := r.jobsCol.FindOne(ctx, bson.M{"id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_job_repo", "get_error")
		return nil, entity.MarkPersistence(err, "get job")
	}
	return &job, nil
}

func (r *MongoJobRepo) ExistsByTaskAndTitle(ctx context.Context, taskID, title string) (bool, error) {
	metrics.IncDBOp("get")

	err := r.jobsCol.FindOne(ctx,
		bson.M{"sourceTaskId": taskID, "jobTitle": title},
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		metrics.IncError("mongo_job_repo", "exists_error")
		return false, entity.MarkPersistence(err, "lookup job by task and title")
	}
	return true, nil
}

func (r *MongoJobRepo) List(ctx context.Context, skip, limit int64) ([]*entity.Job, error) {
	metrics.IncDBOp("list")

	opts := options.Find().SetSort(newestFirst).SetSkip(skip).SetLimit(limit)
	jobs, err := r.findJobs(ctx, bson.D{}, opts)
	if err != nil {
		metrics.IncError("mongo_job_repo", "list_error")
		return nil, entity.MarkPersistence(err, "list jobs")
	}
	return jobs, nil
}

func (r *MongoJobRepo) ListByTask(ctx context.Context, taskID string) ([]*entity.Job, error) {
	metrics.IncDBOp("list")

	jobs, err := r.findJobs(ctx, bson.M{"sourceTaskId": taskID}, options.Find().SetSort(newestFirst))
	if err != nil {
		metrics.IncError("mongo_job_repo", "list_by_task_error")
		return nil, entity.MarkPersistence(err, "list jobs by task")
	}
	return jobs, nil
}

func (r *MongoJobRepo) Count(ctx context.Context) (int64, error) {
	metrics.IncDBOp("count")

	n, err := r.jobsCol.CountDocuments(ctx, bson.D{})
	if err != nil {
		metrics.IncError("mongo_job_repo", "count_error")
		return 0, entity.MarkPersistence(err, "count jobs")
	}
	return n, nil
}

func (r *MongoJobRepo) CountByTask(ctx context.Context, taskID string) (int64, error) {
	metrics.IncDBOp("count")

	n, err := r.jobsCol.CountDocuments(ctx, bson.M{"sourceTaskId": taskID})
	if err != nil {
		metrics.IncError("mongo_job_repo", "count_by_task_error")
		return 0, entity.MarkPersistence(err, "count jobs by task")
	}
	return n, nil
}

func (r *MongoJobRepo) Update(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error) {
	metrics.IncDBOp("put")

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var job entity.Job
	err := r.jobsCol.FindOneAndUpdate(ctx, bson.M{"id": id}, jobPatchUpdate(patch, time.Now().UTC()), opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		metrics.IncError("mongo_job_repo", "update_error")
		return nil, entity.MarkPersistence(err, "update job")
	}
	return &job, nil
}

func (r *MongoJobRepo) Delete(ctx context.Context, id string) (bool, error) {
	metrics.IncDBOp("delete")

	res, err := r.jobsCol.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_job_repo", "delete_error")
		return false, entity.MarkPersistence(err, "delete job")
	}
	return res.DeletedCount > 0, nil
}

// jobPatchUpdate builds the $set document for a partial update.
func jobPatchUpdate(p entity.JobPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if p.SourceTaskID != nil {
		set["sourceTaskId"] = *p.SourceTaskID
	}
	if p.JobTitle != nil {
		set["jobTitle"] = *p.JobTitle
	}
	if p.JobDescription != nil {
		set["jobDescription"] = *p.JobDescription
	}
	switch {
	case p.ClearSalary:
		set["jobSalary"] = nil
	case p.JobSalary != nil:
		set["jobSalary"] = *p.JobSalary
	}
	switch {
	case p.ClearDatePosted:
		set["datePosted"] = nil
	case p.DatePosted != nil:
		set["datePosted"] = p.DatePosted.UTC()
	}
	if p.Processed != nil {
		set["processed"] = *p.Processed
	}
	return bson.M{"$set": set}
}

func (r *MongoJobRepo) findJobs(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*entity.Job, error) {
	cur, err := r.jobsCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	jobs := make([]*entity.Job, 0)
	for cur.Next(ctx) {
		var j entity.Job
		if err := cur.Decode(&j); err != nil {
			metrics.IncError("mongo_job_repo", "decode_error")
			return nil, err
		}
		jobs = append(jobs, &j)
	}
	return jobs, cur.Err()
}
