// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"log/slog"

	"github.com/tdontdon/fit5225/internal/core/cor"
	"github.com/tdontdon/fit5225/internal/core/model"
	"github.com/tdontdon/fit5225/internal/core/services"
)

const DefaultNotificationSubject = "New Bird Insert"

// notificationMessage is the body published for each new record.
type notificationMessage struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

// TagNotifier announces a stored record. Without a notifier configured it
// does nothing.
type TagNotifier struct {
	cor.BaseCommand
	notifier services.Notifier
	subject  string
}

func NewTagNotifier(name string, notifier services.Notifier, subject string) *TagNotifier {
	if subject == "" {
		subject = DefaultNotificationSubject
	}
	return &TagNotifier{BaseCommand: *cor.NewBaseCommand(name), notifier: notifier, subject: subject}
}

func (c *TagNotifier) Execute(context cor.Context) {
	record := context.Get(c.GetInputParam()).(*model.TagRecord)
	if c.notifier == nil {
		return
	}

	tags := model.NotificationTags(record.Tags)
	message, err := services.EncodeJSON(notificationMessage{URL: record.URL, Tags: tags})
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindNotification, c.GetName(), err))
		return
	}

	id, err := c.notifier.Publish(context.GetContext(), &services.Notification{
		Subject: c.subject,
		Message: message,
		Tags:    tags,
	})
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.ErrKindNotification, c.GetName(), err))
		return
	}
	slog.InfoContext(context.GetContext(), "notification published", "url", record.URL, "tags", tags, "message_id", id)
	c.Succeed(context)
	context.Add(ParamNotificationID, id)
	context.Add(c.GetOutputParam(), record)
}
