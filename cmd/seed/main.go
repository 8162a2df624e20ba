package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookvault/internal/config"
	"bookvault/internal/database"
	"bookvault/internal/domain/content"
	"bookvault/internal/envelope"
	"bookvault/internal/pkg/jwt"
	"bookvault/internal/storage"
)

const (
	adminTelegramID  int64 = 1
	memberTelegramID int64 = 1001
	buyerTelegramID  int64 = 2002
)

// minimal 1x1 png
var coverPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xcf, 0xc0, 0xf0,
	0x1f, 0x00, 0x05, 0x00, 0x01, 0xff, 0x89, 0x99, 0x3d, 0x1d, 0x00, 0x00,
	0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type seeder struct {
	db     *gorm.DB
	local  *storage.Local
	crypto *envelope.Service
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	db, err := database.Connect(cfg.DatabaseURL, nil)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	crypto, err := envelope.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("envelope:", err)
	}
	local, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		log.Fatal("storage:", err)
	}
	s := &seeder{db: db, local: local, crypto: crypto}

	// Cleanup old data (children first)
	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM audio_tracks")
	db.Exec("DELETE FROM purchases")
	db.Exec("DELETE FROM memberships")
	db.Exec("DELETE FROM proposals")
	db.Exec("DELETE FROM books")

	ctx := context.Background()
	repo := content.NewRepository(db)

	// ================== BOOKS ==================
	log.Println("Creating books...")

	free := &content.Book{
		ID:          uuid.NewString(),
		Title:       "The Open Shelf",
		Author:      "Community",
		Description: "A free sample everyone can read.",
		Category:    "samples",
		File:        s.encrypted("book", "open-shelf.epub", "application/epub+zip", demoEPUB("The Open Shelf", 3)),
		Cover:       s.plain("open-shelf.png", "image/png", coverPNG),
	}
	if err := repo.CreateBook(ctx, free); err != nil {
		log.Fatal("create free book:", err)
	}

	paid := &content.Book{
		ID:          uuid.NewString(),
		Title:       "Deep Waters",
		Author:      "A. Navigator",
		Description: "Eight chapters, the first five are free to preview.",
		Category:    "novels",
		Price:       499,
		File:        s.encrypted("book", "deep-waters.epub", "application/epub+zip", demoEPUB("Deep Waters", 8)),
		Cover:       s.plain("deep-waters.png", "image/png", coverPNG),
	}
	for i := 1; i <= 2; i++ {
		asset := s.encrypted("audio", fmt.Sprintf("part-%d.mp3", i), "audio/mpeg", demoAudio(i))
		paid.Audiobooks = append(paid.Audiobooks, content.AudioTrack{
			ID:       asset.AssetID,
			Title:    fmt.Sprintf("Part %d", i),
			Position: i - 1,
			Asset:    asset,
		})
	}
	if err := repo.CreateBook(ctx, paid); err != nil {
		log.Fatal("create paid book:", err)
	}

	// ================== PROPOSALS ==================
	log.Println("Creating proposals...")
	proposal := &content.Proposal{
		ID:          uuid.NewString(),
		Title:       "Night Market",
		Author:      "Member Pick",
		Description: "Submitted for the next vote.",
		Price:       299,
		SubmittedBy: memberTelegramID,
		Status:      content.ProposalVoting,
		File:        s.encrypted("book", "night-market.epub", "application/epub+zip", demoEPUB("Night Market", 6)),
	}
	if err := repo.CreateProposal(ctx, proposal); err != nil {
		log.Fatal("create proposal:", err)
	}

	// ================== GRANTS ==================
	log.Println("Creating grants...")
	db.Clauses(clause.OnConflict{DoNothing: true}).Create(&content.Membership{TelegramID: memberTelegramID})
	db.Clauses(clause.OnConflict{DoNothing: true}).Create(&content.Purchase{
		TelegramID: buyerTelegramID,
		BookID:     paid.ID,
		PaymentID:  "seed-payment",
	})

	tokens := jwt.New(cfg.JWTSecret, cfg.JWTTTL)
	adminToken, err := tokens.GenerateToken(adminTelegramID, jwt.RoleAdmin)
	if err != nil {
		log.Fatal("issue admin token:", err)
	}

	log.Println("✅ Seed completed")
	log.Printf("free book:  %s", free.ID)
	log.Printf("paid book:  %s (bought by %d)", paid.ID, buyerTelegramID)
	log.Printf("proposal:   %s (member %d)", proposal.ID, memberTelegramID)
	log.Printf("admin token: %s", adminToken)
}

func (s *seeder) encrypted(kind, name, mime string, data []byte) content.Asset {
	ct, env, err := s.crypto.Wrap(data)
	if err != nil {
		log.Fatal("encrypt:", err)
	}
	loc, err := s.local.Save(kind, ".enc", ct)
	if err != nil {
		log.Fatal("save:", err)
	}
	asset := content.Asset{
		AssetID:  uuid.NewString(),
		MimeType: mime,
		FileName: name,
		Size:     int64(len(data)),
		Location: loc,
	}
	asset.SetEnvelope(env)
	return asset
}

func (s *seeder) plain(name, mime string, data []byte) content.Asset {
	loc, err := s.local.Save("cover", ".png", data)
	if err != nil {
		log.Fatal("save cover:", err)
	}
	return content.Asset{
		AssetID:  uuid.NewString(),
		MimeType: mime,
		FileName: name,
		Size:     int64(len(data)),
		Location: loc,
	}
}

func demoEPUB(title string, chapters int) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, _ := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	_, _ = w.Write([]byte("application/epub+zip"))

	w, _ = zw.Create("META-INF/container.xml")
	_, _ = w.Write([]byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`))

	var manifest, spine bytes.Buffer
	for i := 1; i <= chapters; i++ {
		fmt.Fprintf(&manifest, `<item id="ch%d" href="ch%d.xhtml" media-type="application/xhtml+xml"/>`, i, i)
		fmt.Fprintf(&spine, `<itemref idref="ch%d"/>`, i)

		cw, _ := zw.Create(fmt.Sprintf("OEBPS/ch%d.xhtml", i))
		fmt.Fprintf(cw, `<html xmlns="http://www.w3.org/1999/xhtml"><body><h1>%s</h1><p>Chapter %d</p></body></html>`, title, i)
	}
	w, _ = zw.Create("OEBPS/content.opf")
	fmt.Fprintf(w, `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>%s</dc:title></metadata>
  <manifest>%s</manifest>
  <spine>%s</spine>
</package>`, title, manifest.String(), spine.String())

	_ = zw.Close()
	return buf.Bytes()
}

// demoAudio is not playable audio, only an ID3-tagged payload of the right type.
func demoAudio(n int) []byte {
	return append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{byte(n)}, 2048)...)
}
