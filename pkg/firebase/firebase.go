package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app and the clients built from it.
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
	Firestore   *firestore.Client
	// Bucket is nil when no storage bucket is configured.
	Bucket     *storage.BucketHandle
	BucketName string
}

// Options selects the project and bucket. Empty values fall back to the
// credentials file.
type Options struct {
	CredentialsPath string
	ProjectID       string
	StorageBucket   string
}

// InitFirebase initializes the Firebase application with its auth, Firestore
// and storage clients.
func InitFirebase(ctx context.Context, opts Options, log *slog.Logger) (*App, error) {
	if opts.CredentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(opts.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", opts.CredentialsPath)
	}
	if log == nil {
		log = slog.Default()
	}

	conf := &firebase.Config{ProjectID: opts.ProjectID, StorageBucket: opts.StorageBucket}
	firebaseApp, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(opts.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	fs, err := firebaseApp.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient, Firestore: fs}
	if opts.StorageBucket != "" {
		sc, err := firebaseApp.Storage(ctx)
		if err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("error getting storage client: %w", err)
		}
		bucket, err := sc.DefaultBucket()
		if err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("error opening storage bucket: %w", err)
		}
		app.Bucket = bucket
		app.BucketName = opts.StorageBucket
	}

	log.Info("firebase initialized", "project", opts.ProjectID, "bucket", opts.StorageBucket)
	return app, nil
}

// Close releases the Firestore client.
func (a *App) Close() error {
	if a.Firestore == nil {
		return nil
	}
	return a.Firestore.Close()
}
