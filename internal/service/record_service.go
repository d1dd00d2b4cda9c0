package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/uwscope/scope-web-sub000/internal/calendar"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/logger"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

const RecordServiceName = "scope.records.v1.RecordService"

// RecordServer is the gRPC surface over a patient record. Requests and
// responses are google.protobuf.Struct messages.
type RecordServer interface {
	GetDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRevisions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitCollection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Maintain(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type recordMethod func(RecordServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var recordServiceDesc = grpc.ServiceDesc{
	ServiceName: RecordServiceName,
	HandlerType: (*RecordServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDocument", Handler: unaryHandler("GetDocument", RecordServer.GetDocument)},
		{MethodName: "ListDocuments", Handler: unaryHandler("ListDocuments", RecordServer.ListDocuments)},
		{MethodName: "ListRevisions", Handler: unaryHandler("ListRevisions", RecordServer.ListRevisions)},
		{MethodName: "CreateDocument", Handler: unaryHandler("CreateDocument", RecordServer.CreateDocument)},
		{MethodName: "PutDocument", Handler: unaryHandler("PutDocument", RecordServer.PutDocument)},
		{MethodName: "DeleteDocument", Handler: unaryHandler("DeleteDocument", RecordServer.DeleteDocument)},
		{MethodName: "InitCollection", Handler: unaryHandler("InitCollection", RecordServer.InitCollection)},
		{MethodName: "Maintain", Handler: unaryHandler("Maintain", RecordServer.Maintain)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scope/records/v1/records.proto",
}

func RegisterRecordService(s grpc.ServiceRegistrar, srv RecordServer) {
	s.RegisterService(&recordServiceDesc, srv)
}

func unaryHandler(name string, call recordMethod) grpc.MethodHandler {
	fullMethod := "/" + RecordServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RecordServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RecordServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RecordService implements RecordServer on top of Records.
type RecordService struct {
	records *Records
	log     *logger.Logger
}

func NewRecordService(records *Records, log *logger.Logger) *RecordService {
	if log == nil {
		log = logger.NewNop()
	}
	return &RecordService{records: records, log: log.With("component", "record_service")}
}

// GetDocument returns the current document of (type, setId). With asOf it
// returns the revision current at that instant; with liveSnapshot a
// scheduled activity gets a freshly built dataSnapshot.
func (s *RecordService) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	setID := r.str("setId")
	asOf, err := r.time("asOf")
	if err != nil {
		return nil, err
	}

	var doc model.Document
	switch {
	case asOf != nil:
		id, err := identity(h.Kind(), setID)
		if err != nil {
			return nil, toStatus(err)
		}
		doc, err = s.records.GetAsOf(ctx, collection, id, *asOf)
		if err == nil && doc.Deleted {
			err = errs.NotFound(id)
		}
		if err != nil {
			return nil, toStatus(err)
		}
	case r.boolean("liveSnapshot") && h.Kind().Type == model.TypeScheduledActivity:
		doc, err = s.records.ScheduledActivityWithLiveSnapshot(ctx, collection, setID)
		if err != nil {
			return nil, toStatus(err)
		}
	default:
		doc, err = h.Get(ctx, collection, setID)
		if err != nil {
			return nil, toStatus(err)
		}
	}
	return toStruct(map[string]any{"document": doc})
}

// ListDocuments returns one page of the live documents of a type.
func (s *RecordService) ListDocuments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	page, err := r.intPtr("page")
	if err != nil {
		return nil, err
	}
	pageSize, err := r.intPtr("pageSize")
	if err != nil {
		return nil, err
	}
	docs, err := h.GetAll(ctx, collection)
	if err != nil {
		return nil, toStatus(err)
	}
	p := calendar.Paginate(docs, deref(page), deref(pageSize))
	if p.Items == nil {
		p.Items = []model.Document{}
	}
	return toStruct(map[string]any{
		"documents": p.Items,
		"page":      p.Page,
		"pageSize":  p.PageSize,
		"total":     p.Total,
		"hasNext":   p.HasNext,
	})
}

// ListRevisions returns every revision of (type, setId), tombstones included.
func (s *RecordService) ListRevisions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	id, err := identity(h.Kind(), r.str("setId"))
	if err != nil {
		return nil, toStatus(err)
	}
	history, err := s.records.Store(collection).History(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if history.Len() == 0 {
		return nil, toStatus(errs.NotFound(id))
	}
	revisions, err := history.OrderByRevision(false)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"documents": revisions})
}

func (s *RecordService) CreateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	doc, err := h.Create(ctx, collection, r.object("body"))
	if err != nil {
		return nil, s.writeFailed("create", h.Kind().Type, err)
	}
	return toStruct(map[string]any{"document": doc})
}

// PutDocument writes the next revision. rev is the basis revision the
// caller read; omit it to write unconditionally.
func (s *RecordService) PutDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	basis, err := r.intPtr("rev")
	if err != nil {
		return nil, err
	}
	doc, err := h.Put(ctx, collection, r.str("setId"), basis, r.object("body"))
	if err != nil {
		return nil, s.writeFailed("put", h.Kind().Type, err)
	}
	return toStruct(map[string]any{"document": doc})
}

func (s *RecordService) DeleteDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}
	collection, err := r.required("collection")
	if err != nil {
		return nil, err
	}
	h, err := s.handler(r)
	if err != nil {
		return nil, err
	}
	basis, err := r.intPtr("rev")
	if err != nil {
		return nil, err
	}
	doc, err := h.Delete(ctx, collection, r.str("setId"), basis)
	if err != nil {
		return nil, s.writeFailed("delete", h.Kind().Type, err)
	}
	return toStruct(map[string]any{"document": doc})
}

func (s *RecordService) InitCollection(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection, err := request{req}.required("collection")
	if err != nil {
		return nil, err
	}
	if err := s.records.InitCollection(ctx, collection); err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"collection": collection})
}

func (s *RecordService) Maintain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection, err := request{req}.required("collection")
	if err != nil {
		return nil, err
	}
	report, err := s.records.Maintain(ctx, collection)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{
		"collection":  report.Collection,
		"schedules":   report.Schedules,
		"assessments": report.Assessments,
		"kept":        report.Kept,
		"deleted":     report.Deleted,
		"created":     report.Created,
	})
}

func (s *RecordService) handler(r request) (DocumentHandler, error) {
	docType, err := r.required("type")
	if err != nil {
		return nil, err
	}
	h, err := s.records.Handler(docType)
	if err != nil {
		return nil, toStatus(err)
	}
	return h, nil
}

func (s *RecordService) writeFailed(op, docType string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.log.Error("document write failed", "operation", op, "type", docType, "error", err)
	}
	return st
}

func identity(kind model.Kind, setID string) (model.Identity, error) {
	if kind.Set {
		if setID == "" {
			return model.Identity{}, errs.InvalidArgument("%s requires a setId", kind.Type)
		}
		return model.Element(kind.Type, setID), nil
	}
	if err := noSetID(kind, setID); err != nil {
		return model.Identity{}, err
	}
	return model.Singleton(kind.Type), nil
}

// toStatus maps domain errors onto gRPC status codes. A revision conflict
// carries the winning document as a detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var conflict *errs.RevisionConflictError
	switch {
	case errors.As(err, &conflict):
		st := status.New(codes.Aborted, err.Error())
		if conflict.Current != nil {
			if detail, derr := toStruct(map[string]any{"document": *conflict.Current}); derr == nil {
				if withDetail, werr := st.WithDetails(protoadapt.MessageV1Of(detail)); werr == nil {
					st = withDetail
				}
			}
		}
		return st.Err()
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrSchemaViolation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrDuplicateKey):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

type request struct {
	s *structpb.Struct
}

func (r request) field(name string) (*structpb.Value, bool) {
	v, ok := r.s.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func (r request) str(name string) string {
	v, _ := r.field(name)
	return v.GetStringValue()
}

func (r request) required(name string) (string, error) {
	if s := r.str(name); s != "" {
		return s, nil
	}
	return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
}

func (r request) boolean(name string) bool {
	v, _ := r.field(name)
	return v.GetBoolValue()
}

func (r request) object(name string) map[string]any {
	v, ok := r.field(name)
	if !ok || v.GetStructValue() == nil {
		return map[string]any{}
	}
	return v.GetStructValue().AsMap()
}

func (r request) intPtr(name string) (*int, error) {
	v, ok := r.field(name)
	if !ok {
		return nil, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	if n.NumberValue < math.MinInt32 || n.NumberValue > math.MaxInt32 {
		return nil, status.Errorf(codes.InvalidArgument, "%s is out of range", name)
	}
	i := int(n.NumberValue)
	return &i, nil
}

func (r request) time(name string) (*time.Time, error) {
	s := r.str(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
	}
	return &t, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
