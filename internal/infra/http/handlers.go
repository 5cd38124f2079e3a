package http

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"veilcloud/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type recordEntryRequest struct {
	Entry string `json:"entry"`
}

type recordEntryResponse struct {
	EntryID  string `json:"entry_id"`
	Index    int64  `json:"index"`
	Hash     string `json:"hash"`
	Root     string `json:"root"`
	TreeSize int64  `json:"tree_size"`
}

type inclusionProofBody struct {
	Scope      string   `json:"scope"`
	EntryID    string   `json:"entry_id"`
	EntryIndex int64    `json:"entry_index"`
	EntryHash  string   `json:"entry_hash"`
	Siblings   []string `json:"siblings"`
	Directions []string `json:"directions"`
	Root       string   `json:"root"`
	TreeSize   int64    `json:"tree_size"`
}

type consistencyProofBody struct {
	Scope    string   `json:"scope"`
	FromRoot string   `json:"from_root"`
	ToRoot   string   `json:"to_root"`
	Siblings []string `json:"siblings"`
	FromSize int64    `json:"from_size"`
	ToSize   int64    `json:"to_size"`
}

type verificationResponse struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	VerifiedAt string `json:"verified_at"`
}

type snapshotResponse struct {
	ID        string `json:"id"`
	Scope     string `json:"scope"`
	RootHash  string `json:"root_hash"`
	TreeSize  int64  `json:"tree_size"`
	CreatedAt string `json:"created_at"`
}

type treeStateResponse struct {
	Root        string `json:"root"`
	TreeSize    int64  `json:"tree_size"`
	LastEntryID string `json:"last_entry_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type bundleEntryResponse struct {
	EntryID string             `json:"entry_id"`
	Hash    string             `json:"hash"`
	Proof   inclusionProofBody `json:"proof"`
}

type bundleResponse struct {
	Scope                    string                `json:"scope"`
	Entries                  []bundleEntryResponse `json:"entries"`
	CurrentRoot              string                `json:"current_root"`
	TreeSize                 int64                 `json:"tree_size"`
	VerificationInstructions string                `json:"verification_instructions"`
	ExportedAt               string                `json:"exported_at"`
}

func (s *Server) handleRecordEntry(c *gin.Context) {
	var req recordEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.Entry == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENTRY", "entry is required")
		return
	}
	entry, err := base64.StdEncoding.DecodeString(req.Entry)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENTRY", "entry must be base64")
		return
	}

	resp, err := s.proofs.RecordEntry(c.Request.Context(), c.Param("scope"), entry)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordEntryResponse{
		EntryID:  resp.EntryID,
		Index:    resp.Index,
		Hash:     hex.EncodeToString(resp.Hash),
		Root:     hex.EncodeToString(resp.Root),
		TreeSize: resp.TreeSize,
	})
}

func (s *Server) handleInclusionProof(c *gin.Context) {
	proof, err := s.proofs.GenerateInclusionProof(c.Request.Context(), c.Param("scope"), c.Param("entry_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildInclusionBody(*proof))
}

func (s *Server) handleConsistencyProof(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_RANGE", "from and to snapshot ids are required")
		return
	}
	proof, err := s.proofs.GenerateConsistencyProof(c.Request.Context(), c.Param("scope"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildConsistencyBody(*proof))
}

func (s *Server) handleVerifyInclusion(c *gin.Context) {
	var body inclusionProofBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	proof, err := parseInclusionBody(body)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PROOF", err.Error())
		return
	}
	writeVerification(c, s.proofs.VerifyInclusionProof(*proof))
}

func (s *Server) handleVerifyConsistency(c *gin.Context) {
	var body consistencyProofBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	proof, err := parseConsistencyBody(body)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PROOF", err.Error())
		return
	}
	writeVerification(c, s.proofs.VerifyConsistencyProof(*proof))
}

func (s *Server) handleTreeState(c *gin.Context) {
	state, err := s.proofs.GetTreeState(c.Request.Context(), c.Param("scope"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, treeStateResponse{
		Root:        hex.EncodeToString(state.Root),
		TreeSize:    state.TreeSize,
		LastEntryID: state.LastEntryID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateSnapshot(c *gin.Context) {
	snapshot, err := s.proofs.CreateSnapshot(c.Request.Context(), c.Param("scope"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSnapshotResponse(snapshot))
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	snapshots, err := s.proofs.ListSnapshots(c.Request.Context(), c.Param("scope"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]snapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, buildSnapshotResponse(snapshot))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetSnapshot(c *gin.Context) {
	snapshot, err := s.proofs.GetSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSnapshotResponse(*snapshot))
}

func (s *Server) handleExportBundle(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("entries"))
	if raw == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENTRIES", "entries query parameter is required")
		return
	}
	var entryIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			entryIDs = append(entryIDs, id)
		}
	}

	bundle, err := s.proofs.ExportProofBundle(c.Request.Context(), c.Param("scope"), entryIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	entries := make([]bundleEntryResponse, 0, len(bundle.Entries))
	for _, entry := range bundle.Entries {
		entries = append(entries, bundleEntryResponse{
			EntryID: entry.EntryID,
			Hash:    hex.EncodeToString(entry.Hash),
			Proof:   buildInclusionBody(entry.Proof),
		})
	}
	c.JSON(http.StatusOK, bundleResponse{
		Scope:                    bundle.Scope,
		Entries:                  entries,
		CurrentRoot:              hex.EncodeToString(bundle.CurrentRoot),
		TreeSize:                 bundle.TreeSize,
		VerificationInstructions: bundle.VerificationInstructions,
		ExportedAt:               bundle.ExportedAt.Format(time.RFC3339),
	})
}

func buildInclusionBody(proof domain.InclusionProof) inclusionProofBody {
	return inclusionProofBody{
		Scope:      proof.Scope,
		EntryID:    proof.EntryID,
		EntryIndex: proof.EntryIndex,
		EntryHash:  hex.EncodeToString(proof.EntryHash),
		Siblings:   encodeHexPath(proof.Siblings),
		Directions: encodeDirections(proof.Directions),
		Root:       hex.EncodeToString(proof.Root),
		TreeSize:   proof.TreeSize,
	}
}

func buildConsistencyBody(proof domain.ConsistencyProof) consistencyProofBody {
	return consistencyProofBody{
		Scope:    proof.Scope,
		FromRoot: hex.EncodeToString(proof.FromRoot),
		ToRoot:   hex.EncodeToString(proof.ToRoot),
		Siblings: encodeHexPath(proof.Siblings),
		FromSize: proof.FromSize,
		ToSize:   proof.ToSize,
	}
}

func parseInclusionBody(body inclusionProofBody) (*domain.InclusionProof, error) {
	entryHash, err := hex.DecodeString(body.EntryHash)
	if err != nil {
		return nil, fmt.Errorf("entry_hash: %w", err)
	}
	root, err := hex.DecodeString(body.Root)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	siblings, err := parseHexPath(body.Siblings)
	if err != nil {
		return nil, err
	}
	directions := make([]domain.Direction, 0, len(body.Directions))
	for _, raw := range body.Directions {
		direction, err := domain.ParseDirection(raw)
		if err != nil {
			return nil, err
		}
		directions = append(directions, direction)
	}
	return &domain.InclusionProof{
		Scope:      body.Scope,
		EntryID:    body.EntryID,
		EntryIndex: body.EntryIndex,
		EntryHash:  entryHash,
		Siblings:   siblings,
		Directions: directions,
		Root:       root,
		TreeSize:   body.TreeSize,
	}, nil
}

func parseConsistencyBody(body consistencyProofBody) (*domain.ConsistencyProof, error) {
	fromRoot, err := hex.DecodeString(body.FromRoot)
	if err != nil {
		return nil, fmt.Errorf("from_root: %w", err)
	}
	toRoot, err := hex.DecodeString(body.ToRoot)
	if err != nil {
		return nil, fmt.Errorf("to_root: %w", err)
	}
	siblings, err := parseHexPath(body.Siblings)
	if err != nil {
		return nil, err
	}
	return &domain.ConsistencyProof{
		Scope:    body.Scope,
		FromRoot: fromRoot,
		ToRoot:   toRoot,
		Siblings: siblings,
		FromSize: body.FromSize,
		ToSize:   body.ToSize,
	}, nil
}

func parseHexPath(path []string) ([][]byte, error) {
	out := make([][]byte, 0, len(path))
	for i, raw := range path {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("siblings[%d]: %w", i, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

func encodeHexPath(path [][]byte) []string {
	out := make([]string, 0, len(path))
	for _, hash := range path {
		out = append(out, hex.EncodeToString(hash))
	}
	return out
}

func encodeDirections(directions []domain.Direction) []string {
	out := make([]string, 0, len(directions))
	for _, direction := range directions {
		out = append(out, direction.String())
	}
	return out
}

func buildSnapshotResponse(snapshot domain.Snapshot) snapshotResponse {
	return snapshotResponse{
		ID:        snapshot.ID,
		Scope:     snapshot.Scope,
		RootHash:  hex.EncodeToString(snapshot.RootHash),
		TreeSize:  snapshot.TreeSize,
		CreatedAt: snapshot.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeVerification(c *gin.Context, result domain.VerificationResult) {
	c.JSON(http.StatusOK, verificationResponse{
		Valid:      result.Valid,
		Reason:     result.Reason,
		VerifiedAt: result.VerifiedAt.UTC().Format(time.RFC3339),
	})
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
		status, code = http.StatusNotFound, "ENTRY_NOT_FOUND"
	case errors.Is(err, domain.ErrSnapshotNotFound):
		status, code = http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, domain.ErrEmptyLog):
		status, code = http.StatusConflict, "EMPTY_LOG"
	case errors.Is(err, domain.ErrInvalidRange):
		status, code = http.StatusBadRequest, "INVALID_RANGE"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
