package graph

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

type stageStartKey struct{}

// StageLogger is an eino callback handler that logs every node of the
// pipeline with its name and duration.
type StageLogger struct {
	Log *logrus.Entry
}

func NewStageLogger(log *logrus.Logger) *StageLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StageLogger{Log: logrus.NewEntry(log).WithField("component", "pipeline")}
}

func (l *StageLogger) fields(info *callbacks.RunInfo) logrus.Fields {
	f := logrus.Fields{}
	if info != nil {
		f["node"] = info.Name
		f["type"] = info.Type
		f["component"] = string(info.Component)
	}
	return f
}

func (l *StageLogger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	f := l.fields(info)
	if pc, ok := input.(models.PipelineContext); ok {
		f["run_id"] = pc.RunID
	}
	l.Log.WithFields(f).Debug("stage start")
	return context.WithValue(ctx, stageStartKey{}, time.Now())
}

func (l *StageLogger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	f := l.fields(info)
	if start, ok := ctx.Value(stageStartKey{}).(time.Time); ok {
		f["elapsed"] = time.Since(start).String()
	}
	if pc, ok := output.(models.PipelineContext); ok && pc.Error != "" {
		f["last_error"] = pc.Error
	}
	l.Log.WithFields(f).Debug("stage end")
	return ctx
}

func (l *StageLogger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.Log.WithFields(l.fields(info)).WithError(err).Error("stage error")
	return ctx
}

func (l *StageLogger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	// Pipeline nodes are invokable only.
	output.Close()
	return ctx
}

func (l *StageLogger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}
