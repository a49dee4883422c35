package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"onboarding-api/domain"
)

const (
	intakeRowKey   = "intake"
	appStateRowKey = "app"
	edmInt64       = "Edm.Int64"
)

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage persists intake answers and app state in Azure Tables and publishes
// intake events to an Azure queue.
type Storage struct {
	intakeTable   tableClient
	appStateTable tableClient
	eventsQueue   queueClient
	now           func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, intakeTable, appStateTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, fmt.Errorf("table service: %w", err)
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}
	return newStorage(svc.NewClient(intakeTable), svc.NewClient(appStateTable), q), nil
}

func newStorage(intake, appState tableClient, events queueClient) *Storage {
	return &Storage{intakeTable: intake, appStateTable: appState, eventsQueue: events, now: time.Now}
}

// stateEntity is a single row holding a JSON document for one user.
type stateEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Data          string `json:"Data"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type,omitempty"`
}

// LoadIntake returns the persisted answers of a user, or empty answers when
// none were saved.
func (s *Storage) LoadIntake(ctx context.Context, userID string) (domain.Answers, error) {
	data, err := s.loadDocument(ctx, s.intakeTable, userID, intakeRowKey)
	if err != nil || data == "" {
		return domain.Answers{}, err
	}
	return decodeAnswers(data)
}

// SaveIntake replaces the persisted answers of a user.
func (s *Storage) SaveIntake(ctx context.Context, userID string, answers domain.Answers) error {
	data, err := sonic.MarshalString(answers)
	if err != nil {
		return err
	}
	return s.saveDocument(ctx, s.intakeTable, userID, intakeRowKey, data)
}

// LoadAppState returns the persisted app state of a user, or the zero state.
func (s *Storage) LoadAppState(ctx context.Context, userID string) (domain.AppState, error) {
	data, err := s.loadDocument(ctx, s.appStateTable, userID, appStateRowKey)
	if err != nil || data == "" {
		return domain.AppState{}, err
	}
	var st domain.AppState
	if err := sonic.UnmarshalString(data, &st); err != nil {
		return domain.AppState{}, fmt.Errorf("decode app state: %w", err)
	}
	return st, nil
}

// SaveAppState replaces the persisted app state of a user.
func (s *Storage) SaveAppState(ctx context.Context, userID string, st domain.AppState) error {
	data, err := sonic.MarshalString(st)
	if err != nil {
		return err
	}
	return s.saveDocument(ctx, s.appStateTable, userID, appStateRowKey, data)
}

// EnqueueEvents sends the given events to the intake events queue.
func (s *Storage) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	for _, ev := range events {
		env := domain.EventEnvelope{UserID: userID, Event: ev}
		data, err := sonic.MarshalString(env)
		if err != nil {
			return err
		}
		if _, err := s.eventsQueue.EnqueueMessage(ctx, data, nil); err != nil {
			return fmt.Errorf("enqueue %s: %w", ev.Type, err)
		}
	}
	return nil
}

func (s *Storage) loadDocument(ctx context.Context, table tableClient, pk, rk string) (string, error) {
	resp, err := table.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	ent, err := decodeStateEntity(resp.Value)
	if err != nil {
		return "", err
	}
	return ent.Data, nil
}

func (s *Storage) saveDocument(ctx context.Context, table tableClient, pk, rk, data string) error {
	payload, err := sonic.Marshal(stateEntity{
		PartitionKey:  pk,
		RowKey:        rk,
		Data:          data,
		UpdatedAt:     s.now().UnixMilli(),
		UpdatedAtType: edmInt64,
	})
	if err != nil {
		return err
	}
	_, err = table.UpsertEntity(ctx, payload, nil)
	return err
}

func decodeStateEntity(data []byte) (stateEntity, error) {
	var ent stateEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return stateEntity{}, fmt.Errorf("decode entity: %w", err)
	}
	return ent, nil
}

func decodeAnswers(data string) (domain.Answers, error) {
	var answers domain.Answers
	if err := sonic.UnmarshalString(data, &answers); err != nil {
		return domain.Answers{}, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
