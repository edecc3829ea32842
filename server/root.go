package server

import (
	"context"

	"mini-rdp/actor"
	"mini-rdp/marshal"
	"mini-rdp/types"
)

// RootActorID is the actor every server hosts. Clients ask it which actors
// live on the server.
const RootActorID = "root"

// rootTypes holds the wire types of the root actor's replies.
var rootTypes = func() *types.Registry {
	reg := types.NewRegistry()
	if _, err := reg.AddDict("root.actor", map[string]string{
		"actor":    "string",
		"typeName": "string",
	}); err != nil {
		panic(err)
	}
	return reg
}()

// RootSpec describes the root actor of the server identified by serverID:
//
//	listActors() → {actors: [{actor, typeName}...], serverID}
//
// Clients may pass any serverID; only the actors list is read back.
func RootSpec(serverID string) *actor.Spec {
	spec, err := actor.NewSpec(rootTypes, "root", []actor.Method{{
		Name:    "listActors",
		Request: marshal.Template{},
		Response: marshal.Template{
			"actors":   marshal.NewRetVal("array:root.actor"),
			"serverID": serverID,
		},
	}}, nil)
	if err != nil {
		panic(err)
	}
	return spec
}

func (svr *Server) listActors(ctx context.Context, _ []any) (any, error) {
	var actors []any
	for _, id := range svr.actorIDs() {
		svc := svr.lookup(id)
		if svc == nil {
			continue
		}
		actors = append(actors, map[string]any{
			"actor":    id,
			"typeName": svc.spec.TypeName,
		})
	}
	return actors, nil
}
