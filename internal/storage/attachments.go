package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attachment describes one stored file and its public download URL.
type Attachment struct {
	ID         string    `json:"id"`
	ObjectName string    `json:"object_name"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AttachmentStore keeps message attachments in a GridFS bucket.
type AttachmentStore struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	baseURL string
}

// NewAttachmentStore connects to MongoDB and opens the attachments bucket.
func NewAttachmentStore(ctx context.Context, uri, database, baseURL string) (*AttachmentStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database),
		options.GridFSBucket().SetName("attachments"))
	if err != nil {
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}

	return &AttachmentStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// ObjectName builds the stored object name for an upload. The original
// filename contributes only its extension.
func ObjectName(userID, conversationID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s/%d%s", userID, conversationID, time.Now().UnixNano(), ext)
}

// Upload streams content into GridFS and returns the stored attachment.
func (s *AttachmentStore) Upload(ctx context.Context, userID, conversationID, filename, mimeType string, content io.Reader) (*Attachment, error) {
	objectName := ObjectName(userID, conversationID, filename)
	opts := options.GridFSUpload().SetMetadata(bson.M{
		"filename":        filename,
		"mime_type":       mimeType,
		"uploaded_by":     userID,
		"conversation_id": conversationID,
	})

	stream, err := s.bucket.OpenUploadStream(objectName, opts)
	if err != nil {
		return nil, fmt.Errorf("open upload stream: %w", err)
	}
	size, err := io.Copy(stream, content)
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}

	id := stream.FileID.(primitive.ObjectID).Hex()
	return &Attachment{
		ID:         id,
		ObjectName: objectName,
		Filename:   filename,
		MimeType:   mimeType,
		Size:       size,
		URL:        fmt.Sprintf("%s/attachments/%s", s.baseURL, id),
		UploadedBy: userID,
		UploadedAt: time.Now(),
	}, nil
}

// Download opens a read stream for the attachment. The caller closes the
// returned stream.
func (s *AttachmentStore) Download(ctx context.Context, id string) (io.ReadCloser, *Attachment, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid attachment id: %w", err)
	}

	stream, err := s.bucket.OpenDownloadStream(objectID)
	if err != nil {
		return nil, nil, fmt.Errorf("open download stream: %w", err)
	}

	file := stream.GetFile()
	var metadata bson.M
	if file.Metadata != nil {
		_ = bson.Unmarshal(file.Metadata, &metadata)
	}
	attachment := &Attachment{
		ID:         id,
		ObjectName: file.Name,
		Filename:   metadataString(metadata, "filename"),
		MimeType:   metadataString(metadata, "mime_type"),
		Size:       file.Length,
		URL:        fmt.Sprintf("%s/attachments/%s", s.baseURL, id),
		UploadedBy: metadataString(metadata, "uploaded_by"),
		UploadedAt: file.UploadDate,
	}
	if attachment.Filename == "" {
		attachment.Filename = path.Base(file.Name)
	}
	return stream, attachment, nil
}

// ConversationID reports which conversation an attachment belongs to.
func (s *AttachmentStore) ConversationID(ctx context.Context, id string) (string, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", fmt.Errorf("invalid attachment id: %w", err)
	}
	cursor, err := s.bucket.FindContext(ctx, bson.M{"_id": objectID})
	if err != nil {
		return "", fmt.Errorf("find attachment: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return "", mongo.ErrNoDocuments
	}
	var file struct {
		Metadata bson.M `bson:"metadata"`
	}
	if err := cursor.Decode(&file); err != nil {
		return "", fmt.Errorf("decode attachment: %w", err)
	}
	return metadataString(file.Metadata, "conversation_id"), nil
}

// Close disconnects the underlying client.
func (s *AttachmentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func metadataString(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
